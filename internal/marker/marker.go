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

// Package marker writes ingestion markers: append-only rows recording that a
// job has started processing a file.
package marker

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"go.chromium.org/luci/common/logging"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// EventParseInitiated marks a file that was handed over for ingestion.
const EventParseInitiated = "parse_initiated"

// Record is a row of a log table.
//
// Partition fields missing from the file path are written as NULL.
type Record struct {
	JobName              string
	ProcessedTimestamp   time.Time
	BatchID              string
	EventSchema          bigquery.NullString
	AnalyticsEnvironment bigquery.NullString
	EventCategory        bigquery.NullString
	EventDS              bigquery.NullDate
	EventTime            bigquery.NullString
	Event                string
	FilePath             string

	// InsertID overrides the insert ID derived from job, file and event.
	InsertID string
}

var _ bigquery.ValueSaver = (*Record)(nil)

// Save implements bigquery.ValueSaver.
func (r *Record) Save() (map[string]bigquery.Value, string, error) {
	insertID := r.InsertID
	if insertID == "" {
		insertID = uuid.NewMD5(uuid.NameSpaceURL, []byte(r.JobName+"|"+r.FilePath+"|"+r.Event)).String()
	}
	return map[string]bigquery.Value{
		"job_name":              r.JobName,
		"processed_timestamp":   r.ProcessedTimestamp,
		"batch_id":              r.BatchID,
		"event_schema":          r.EventSchema,
		"analytics_environment": r.AnalyticsEnvironment,
		"event_category":        r.EventCategory,
		"event_ds":              r.EventDS,
		"event_time":            r.EventTime,
		"event":                 r.Event,
		"file_path":             r.FilePath,
	}, insertID, nil
}

func field(p gspath.Path, name string) bigquery.NullString {
	v, ok := gspath.Decode(p, name)
	return bigquery.NullString{StringVal: v, Valid: ok}
}

// Log returns a log row for path with the given event. It does no I/O.
func Log(path gspath.Path, jobName, event string, scope gspath.Scope, now time.Time) *Record {
	r := &Record{
		JobName:              jobName,
		ProcessedTimestamp:   now.UTC(),
		BatchID:              gspath.BatchID(path, scope),
		EventSchema:          field(path, gspath.DataType),
		AnalyticsEnvironment: field(path, gspath.AnalyticsEnvironment),
		EventCategory:        field(path, gspath.EventCategory),
		EventTime:            field(path, gspath.EventTime),
		Event:                event,
		FilePath:             path.String(),
	}
	if ds, ok := gspath.Decode(path, gspath.EventDS); ok {
		if d, err := civil.ParseDate(ds); err == nil {
			r.EventDS = bigquery.NullDate{Date: d, Valid: true}
		}
	}
	return r
}

// Mark returns the parse_initiated marker for path.
func Mark(path gspath.Path, jobName string, scope gspath.Scope, now time.Time) *Record {
	return Log(path, jobName, EventParseInitiated, scope, now)
}

// Marker appends records to a log table.
type Marker struct {
	ins *bqutil.Inserter
}

// New returns a Marker writing with ins.
func New(ins *bqutil.Inserter) *Marker {
	return &Marker{ins: ins}
}

// Append appends the records.
//
// It returns nil if every record landed, otherwise an errors.MultiError with
// one slot per record where the slots of records that landed are nil. One
// failed record never prevents the others from being written.
func (m *Marker) Append(ctx context.Context, records []*Record) error {
	rows := make([]bigquery.ValueSaver, len(records))
	for i, r := range records {
		rows[i] = r
	}
	err := m.ins.Put(ctx, rows)
	for i, rerr := range bqutil.RowErrors(err, len(records)) {
		if rerr != nil {
			logging.Warningf(ctx, "Failed to write %s marker for %s: %s", records[i].Event, records[i].FilePath, rerr)
		}
	}
	return err
}
