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

package ingestedset

import (
	"context"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
)

// Rows is implemented by *bigquery.RowIterator.
type Rows interface {
	Next(dst any) error
}

// Runner starts a query.
type Runner interface {
	Run(ctx context.Context, q Query) (Rows, error)
}

// ClientRunner runs queries with a BigQuery client.
type ClientRunner struct {
	Client *bigquery.Client
}

// Run implements Runner.
func (r ClientRunner) Run(ctx context.Context, q Query) (Rows, error) {
	bq := r.Client.Query(q.SQL)
	bq.Parameters = q.Parameters
	return bq.Read(ctx)
}

// Reader reads the ingested set.
type Reader struct {
	Runner Runner
}

type filePathRow struct {
	FilePath bigquery.NullString `bigquery:"file_path"`
}

// FilePaths runs the query and returns the file_path column.
//
// Errors worth retrying are tagged as transient.
func (r *Reader) FilePaths(ctx context.Context, q Query) ([]string, error) {
	it, err := r.Runner.Run(ctx, q)
	if err != nil {
		return nil, errors.Fmt("running ingested-set query: %w", tagTransient(err))
	}
	var paths []string
	for {
		var row filePathRow
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Fmt("reading ingested-set row: %w", tagTransient(err))
		}
		if row.FilePath.Valid {
			paths = append(paths, row.FilePath.StringVal)
		}
	}
	logging.Debugf(ctx, "Ingested set has %d files", len(paths))
	return paths, nil
}

func tagTransient(err error) error {
	if bqutil.IsTransient(err) {
		return transient.Tag.Apply(err)
	}
	return err
}
