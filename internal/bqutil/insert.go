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

package bqutil

import (
	"context"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"
)

// DefaultBatchSize is the number of rows sent in one streaming insert call.
const DefaultBatchSize = 500

// RowPutter streams rows into a table. It is implemented by
// *bigquery.Inserter.
type RowPutter interface {
	Put(ctx context.Context, src any) error
}

// Inserter inserts rows into a BigQuery table in batches, reporting errors
// per row.
type Inserter struct {
	putter    RowPutter
	batchSize int
}

// NewInserter initialises a new inserter for the table.
func NewInserter(table *bigquery.Table, batchSize int) *Inserter {
	return NewInserterFromPutter(table.Inserter(), batchSize)
}

// NewInserterFromPutter initialises a new inserter on top of any RowPutter.
func NewInserterFromPutter(p RowPutter, batchSize int) *Inserter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Inserter{
		putter:    p,
		batchSize: batchSize,
	}
}

// Put inserts the given rows into BigQuery, retrying transient failures.
//
// A failure never aborts the remaining batches. Put returns nil if every row
// was inserted; otherwise it returns an errors.MultiError with one slot per
// row where the slots of rows that were inserted are nil. A batch that failed
// as a whole (e.g. retries exhausted) reports the same error for each of its
// rows.
func (i *Inserter) Put(ctx context.Context, rows []bigquery.ValueSaver) error {
	errs := errors.NewLazyMultiError(len(rows))
	for b, batch := range i.batch(rows) {
		offset := b * i.batchSize
		err := i.putWithRetries(ctx, batch)
		if err == nil {
			continue
		}
		var pme bigquery.PutMultiError
		if errors.As(err, &pme) {
			for _, rie := range pme {
				if rie.RowIndex < 0 || rie.RowIndex >= len(batch) {
					continue
				}
				errs.Assign(offset+rie.RowIndex, errors.Fmt("row %d: %w", offset+rie.RowIndex, rie.Errors))
			}
			continue
		}
		for idx := range batch {
			errs.Assign(offset+idx, errors.Fmt("putting batch %d: %w", b, err))
		}
	}
	return errs.Get()
}

// RowErrors returns the per-row errors of an error returned by Put, or nil
// if err is nil. An error that is not a MultiError is reported for each of
// the n rows.
func RowErrors(err error, n int) errors.MultiError {
	if err == nil {
		return nil
	}
	var merr errors.MultiError
	if errors.As(err, &merr) {
		return merr
	}
	out := make(errors.MultiError, n)
	for i := range out {
		out[i] = err
	}
	return out
}

// batch divides the rows to be inserted into batches of at most batchSize.
func (i *Inserter) batch(rows []bigquery.ValueSaver) [][]bigquery.ValueSaver {
	var result [][]bigquery.ValueSaver
	pages := (len(rows) + (i.batchSize - 1)) / i.batchSize
	for p := 0; p < pages; p++ {
		start := p * i.batchSize
		end := start + i.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		result = append(result, rows[start:end])
	}
	return result
}

func (i *Inserter) putWithRetries(ctx context.Context, batch []bigquery.ValueSaver) error {
	return retry.Retry(ctx, transient.Only(retry.Default), func() error {
		err := i.putter.Put(ctx, batch)
		if IsTransient(err) {
			err = transient.Tag.Apply(err)
		}
		return err
	}, retry.LogCallback(ctx, "bigquery_put"))
}

func hasReason(apiErr *googleapi.Error, reason string) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == reason {
			return true
		}
	}
	return false
}

// IsTransient returns true for BigQuery API errors worth retrying: quota
// exhaustion and server-side failures.
func IsTransient(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.Code == http.StatusForbidden && hasReason(apiErr, "quotaExceeded"):
		return true
	case apiErr.Code == http.StatusTooManyRequests:
		return true
	case apiErr.Code >= http.StatusInternalServerError:
		return true
	}
	return false
}

// FatalError returns true if the error is a known fatal error.
func FatalError(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden && hasReason(apiErr, "accessDenied")
}
