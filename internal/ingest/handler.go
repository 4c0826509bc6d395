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

// Package ingest handles file notifications pushed by Pub/Sub: it marks the
// file, reads it and writes its events to BigQuery.
package ingest

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/tsmon/field"
	"go.chromium.org/luci/common/tsmon/metric"
	"go.chromium.org/luci/server/pubsub"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/events"
	"github.com/online-services/analytics-pipeline/internal/gspath"
	"github.com/online-services/analytics-pipeline/internal/marker"
	"github.com/online-services/analytics-pipeline/internal/notify"
)

// HandlerID is the ID of the Pub/Sub push handler.
const HandlerID = "gcs-to-bq"

// objectFinalize is the storage notification event type of a new object.
const objectFinalize = "OBJECT_FINALIZE"

var (
	filesCounter = metric.NewCounter(
		"analytics/ingest/files",
		"The number of file notifications handled, by outcome.",
		nil,
		// "success", "ignored", "transient-failure", "access-denied" or
		// "permanent-failure".
		field.String("status"))

	rowsCounter = metric.NewCounter(
		"analytics/ingest/rows",
		"The number of rows written by the ingestion handler.",
		nil,
		// "logs", "events" or "debug".
		field.String("table"),
		// "success", "failure" or "access-denied".
		field.String("status"))
)

// ObjectReader reads objects from Cloud Storage.
type ObjectReader interface {
	// Read returns the content of an object. A missing object is reported as
	// storage.ErrObjectNotExist.
	Read(ctx context.Context, bucket, name string) ([]byte, error)
}

// Handler ingests files named by Pub/Sub notifications.
type Handler struct {
	// Objects reads the notified files.
	Objects ObjectReader
	// Logs writes parse_initiated markers.
	Logs *marker.Marker
	// Debug writes rows that could not be ingested as events.
	Debug *bqutil.Inserter
	// Events writes events.
	Events *bqutil.Inserter
	// JobName identifies this server in the rows it writes.
	JobName string
	// Scope is how batch ids are computed.
	Scope gspath.Scope
}

func errStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case transient.Tag.In(err):
		return "transient-failure"
	case pubsub.Ignore.In(err):
		return "ignored"
	case bqutil.FatalError(err):
		return "access-denied"
	default:
		return "permanent-failure"
	}
}

// Handle is a pubsub.Handler.
func (h *Handler) Handle(ctx context.Context, msg pubsub.Message) (err error) {
	defer func() {
		// Closure for late binding.
		filesCounter.Add(ctx, 1, errStatus(err))
	}()

	if et, ok := msg.Attributes["eventType"]; ok && et != objectFinalize {
		return pubsub.Ignore.Apply(errors.Fmt("ignoring %s notification", et))
	}
	n, err := notify.Decode(msg.Data)
	if err != nil {
		return err
	}
	path := n.Path()
	if path.IsDir() {
		return pubsub.Ignore.Apply(errors.Fmt("%s is a directory placeholder", path))
	}

	ctx = logging.SetFields(ctx, logging.Fields{
		"file":    path.String(),
		"message": msg.MessageID,
	})
	if n.JobName != "" {
		ctx = logging.SetField(ctx, "dispatcher", n.JobName)
	}
	return h.ingest(ctx, path)
}

func (h *Handler) ingest(ctx context.Context, path gspath.Path) error {
	now := clock.Now(ctx)

	count(ctx, "logs", 1, h.Logs.Append(ctx, []*marker.Record{marker.Mark(path, h.JobName, h.Scope, now)}))

	data, err := h.Objects.Read(ctx, path.Bucket(), path.Object())
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		logging.Warningf(ctx, "File no longer exists")
		return pubsub.Ignore.Apply(err)
	case err != nil:
		return transient.Tag.Apply(errors.Fmt("reading file: %w", err))
	}

	evs, debug := h.classify(ctx, path, data, now)
	logging.Infof(ctx, "Ingesting %d events and %d debug rows", len(evs), len(debug))

	var failure error
	if len(evs) > 0 {
		err := h.Events.Put(ctx, evs)
		count(ctx, "events", len(evs), err)
		failure = writeOutcome(err, len(evs))
	}
	if len(debug) > 0 {
		err := h.Debug.Put(ctx, debug)
		count(ctx, "debug", len(debug), err)
		failure = worse(failure, writeOutcome(err, len(debug)))
	}
	return failure
}

// classify splits the file content into event rows and debug rows.
//
// Rows carry insert ids derived from the file and the element index, so a
// redelivered notification does not duplicate rows.
func (h *Handler) classify(ctx context.Context, path gspath.Path, data []byte, now time.Time) (evs, debug []bigquery.ValueSaver) {
	batchID := gspath.BatchID(path, h.Scope)
	debugRow := func(i int, content string) bigquery.ValueSaver {
		r := marker.Log(path, h.JobName, content, h.Scope, now)
		r.InsertID = fmt.Sprintf("%s/debug/%d", batchID, i)
		return r
	}

	p, err := events.Parse(data)
	if err != nil {
		logging.Warningf(ctx, "Failed to parse file, storing it as is: %s", err)
		return nil, []bigquery.ValueSaver{debugRow(0, string(data))}
	}
	if p.Elements == nil {
		return nil, []bigquery.ValueSaver{debugRow(0, p.Raw)}
	}
	for i, elem := range p.Elements {
		if ev, ok := events.Normalize(elem, h.JobName, now); ok {
			ev.InsertID = fmt.Sprintf("%s/event/%d", batchID, i)
			evs = append(evs, ev)
			continue
		}
		debug = append(debug, debugRow(i, events.CastToString(elem).StringVal))
	}
	return evs, debug
}

func count(ctx context.Context, table string, rows int, err error) {
	failed, denied := 0, 0
	for _, rerr := range bqutil.RowErrors(err, rows) {
		switch {
		case rerr == nil:
			continue
		case bqutil.FatalError(rerr):
			denied++
		default:
			failed++
		}
		logging.Warningf(ctx, "Failed to write a row to %s: %s", table, rerr)
	}
	rowsCounter.Add(ctx, int64(rows-failed-denied), table, "success")
	if failed > 0 {
		rowsCounter.Add(ctx, int64(failed), table, "failure")
	}
	if denied > 0 {
		rowsCounter.Add(ctx, int64(denied), table, "access-denied")
	}
}

// writeOutcome reduces the per-row errors of a write to the error the
// handler reports. A table that denies access fails the notification
// permanently, since redelivery cannot succeed. Infrastructure failures are
// transient. Rows rejected for their content are only counted.
func writeOutcome(err error, rows int) error {
	var retry error
	for _, rerr := range bqutil.RowErrors(err, rows) {
		switch {
		case rerr == nil:
		case bqutil.FatalError(rerr):
			return errors.Fmt("writing rows: %w", rerr)
		case retry == nil && transient.Tag.In(rerr):
			retry = transient.Tag.Apply(errors.Fmt("writing rows: %w", rerr))
		}
	}
	return retry
}

// worse returns the more severe of two write outcomes: access denial over
// transient failures over nil.
func worse(a, b error) error {
	if a == nil || (b != nil && bqutil.FatalError(b) && !bqutil.FatalError(a)) {
		return b
	}
	return a
}
