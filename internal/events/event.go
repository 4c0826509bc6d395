// Copyright 2026 The Online Services Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package events

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/goccy/go-json"

	"go.chromium.org/luci/common/bq"
)

// aliases lists, per column, the keys an event may carry the value under.
// The first key present wins.
var aliases = []struct {
	column string
	keys   []string
}{
	{"event_class", []string{"eventClass", "event_class"}},
	{"analytics_environment", []string{"analyticsEnvironment", "analytics_environment"}},
	{"batch_id", []string{"batchId", "batch_id"}},
	{"event_id", []string{"eventId", "event_id"}},
	{"event_index", []string{"eventIndex", "event_index"}},
	{"event_source", []string{"eventSource", "event_source"}},
	{"event_type", []string{"eventType", "event_type"}},
	{"session_id", []string{"sessionId", "session_id"}},
	{"build_version", []string{"buildVersion", "build_version"}},
	{"event_environment", []string{"eventEnvironment", "event_environment"}},
	{"event_timestamp", []string{"eventTimestamp", "event_timestamp"}},
	{"received_timestamp", []string{"receivedTimestamp", "received_timestamp"}},
	{"event_attributes", []string{"eventAttributes", "event_attributes"}},
}

func lookup(e map[string]any, column string) any {
	for _, a := range aliases {
		if a.column != column {
			continue
		}
		for _, k := range a.keys {
			if v, ok := e[k]; ok && v != nil {
				return v
			}
		}
	}
	return nil
}

// timestampLayouts are tried in order when parsing a string timestamp.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05 MST",
	time.RFC3339Nano,
}

// Event is a row of the events table.
type Event struct {
	EventClass           string
	AnalyticsEnvironment bigquery.NullString
	BatchID              bigquery.NullString
	EventID              bigquery.NullString
	EventIndex           bigquery.NullInt64
	EventSource          bigquery.NullString
	EventType            bigquery.NullString
	SessionID            bigquery.NullString
	BuildVersion         bigquery.NullString
	EventEnvironment     bigquery.NullString
	EventTimestamp       bigquery.NullTimestamp
	ReceivedTimestamp    bigquery.NullTimestamp
	InsertedTimestamp    time.Time
	JobName              string
	EventAttributes      bigquery.NullString

	// InsertID is used to deduplicate retried inserts. A random one is
	// generated if empty.
	InsertID string
}

var _ bigquery.ValueSaver = (*Event)(nil)

// Save implements bigquery.ValueSaver.
func (e *Event) Save() (map[string]bigquery.Value, string, error) {
	insertID := e.InsertID
	if insertID == "" {
		insertID = bq.ID.Generate()
	}
	return map[string]bigquery.Value{
		"event_class":           e.EventClass,
		"analytics_environment": e.AnalyticsEnvironment,
		"batch_id":              e.BatchID,
		"event_id":              e.EventID,
		"event_index":           e.EventIndex,
		"event_source":          e.EventSource,
		"event_type":            e.EventType,
		"session_id":            e.SessionID,
		"build_version":         e.BuildVersion,
		"event_environment":     e.EventEnvironment,
		"event_timestamp":       e.EventTimestamp,
		"received_timestamp":    e.ReceivedTimestamp,
		"inserted_timestamp":    e.InsertedTimestamp,
		"job_name":              e.JobName,
		"event_attributes":      e.EventAttributes,
	}, insertID, nil
}

// Normalize turns a decoded element into an events table row.
//
// It returns false if the element is not an event, i.e. it is not a JSON
// object or has no event class. Such elements belong in the debug table.
func Normalize(elem any, jobName string, now time.Time) (*Event, bool) {
	m, ok := elem.(map[string]any)
	if !ok {
		return nil, false
	}
	class := CastToString(lookup(m, "event_class"))
	if !class.Valid {
		return nil, false
	}
	return &Event{
		EventClass:           class.StringVal,
		AnalyticsEnvironment: CastToString(lookup(m, "analytics_environment")),
		BatchID:              CastToString(lookup(m, "batch_id")),
		EventID:              CastToString(lookup(m, "event_id")),
		EventIndex:           castToInt(lookup(m, "event_index")),
		EventSource:          CastToString(lookup(m, "event_source")),
		EventType:            CastToString(lookup(m, "event_type")),
		SessionID:            CastToString(lookup(m, "session_id")),
		BuildVersion:         CastToString(lookup(m, "build_version")),
		EventEnvironment:     CastToString(lookup(m, "event_environment")),
		EventTimestamp:       CastToTimestamp(lookup(m, "event_timestamp")),
		ReceivedTimestamp:    CastToTimestamp(lookup(m, "received_timestamp")),
		InsertedTimestamp:    now.UTC(),
		JobName:              jobName,
		EventAttributes:      CastToString(lookup(m, "event_attributes")),
	}, true
}

// CastToString converts a decoded JSON value to a string column value.
// Objects and arrays are serialised as JSON. nil is NULL.
func CastToString(v any) bigquery.NullString {
	switch v := v.(type) {
	case nil:
		return bigquery.NullString{}
	case string:
		return bigquery.NullString{StringVal: v, Valid: true}
	case json.Number:
		return bigquery.NullString{StringVal: v.String(), Valid: true}
	case bool:
		return bigquery.NullString{StringVal: strconv.FormatBool(v), Valid: true}
	case map[string]any, []any:
		blob, err := json.Marshal(v)
		if err != nil {
			return bigquery.NullString{StringVal: fmt.Sprint(v), Valid: true}
		}
		return bigquery.NullString{StringVal: string(blob), Valid: true}
	default:
		return bigquery.NullString{StringVal: fmt.Sprint(v), Valid: true}
	}
}

func castToInt(v any) bigquery.NullInt64 {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return bigquery.NullInt64{Int64: i, Valid: true}
		}
		if f, err := v.Float64(); err == nil && f == math.Trunc(f) {
			return bigquery.NullInt64{Int64: int64(f), Valid: true}
		}
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return bigquery.NullInt64{Int64: i, Valid: true}
		}
	}
	return bigquery.NullInt64{}
}

// CastToTimestamp parses a timestamp given either as a string in one of the
// supported layouts or as unix seconds. Anything else is NULL.
func CastToTimestamp(v any) bigquery.NullTimestamp {
	var secs float64
	switch v := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return bigquery.NullTimestamp{Timestamp: t.UTC(), Valid: true}
			}
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return bigquery.NullTimestamp{}
		}
		secs = f
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return bigquery.NullTimestamp{}
		}
		secs = f
	default:
		return bigquery.NullTimestamp{}
	}
	whole, frac := math.Modf(secs)
	return bigquery.NullTimestamp{
		Timestamp: time.Unix(int64(whole), int64(frac*1e9)).UTC(),
		Valid:     true,
	}
}
