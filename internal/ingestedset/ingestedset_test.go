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
	"net/http"
	"strings"
	"testing"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry/transient"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"

	"github.com/online-services/analytics-pipeline/internal/partition"
)

var tables = Tables{
	Logs:   "proj.logs.events_logs_function_native",
	Debug:  "proj.logs.events_debug_function_native",
	Events: "proj.events.events_function_native",
}

func TestBuild(t *testing.T) {
	t.Parallel()

	ftt.Run(`Build`, t, func(t *ftt.Test) {
		p := &partition.Predicate{
			EventSchema:  "json",
			Categories:   []string{"session"},
			Environments: []string{"live"},
			Dates: &partition.DateRange{
				Start: civil.Date{Year: 2020, Month: 1, Day: 1},
				Stop:  civil.Date{Year: 2020, Month: 1, Day: 3},
			},
			TimeParts: []string{"0-8", "8-16"},
		}

		t.Run(`full predicate`, func(t *ftt.Test) {
			q, err := Build(p, tables)
			assert.NoErr(t, err)
			assert.Loosely(t, q.SQL, should.ContainSubstring("FROM `proj.logs.events_logs_function_native`"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("FROM `proj.events.events_function_native`"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("FROM `proj.logs.events_debug_function_native`"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("AND event_ds BETWEEN @ds_start AND @ds_stop"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("AND event = 'parse_initiated'"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("UNION DISTINCT"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("USING (batch_id)"))
			assert.Loosely(t, strings.Contains(q.SQL, "scale_test_name"), should.BeFalse)
			assert.Loosely(t, strings.Contains(q.SQL, "\n\n"), should.BeFalse)
			assert.Loosely(t, q.SQL, should.HavePrefix("SELECT DISTINCT\n  a.file_path\n"))

			assert.Loosely(t, q.Param("event_schema"), should.Equal[any]("json"))
			assert.Loosely(t, q.Param("categories"), should.Match[any]([]string{"session"}))
			assert.Loosely(t, q.Param("environments"), should.Match[any]([]string{"live"}))
			assert.Loosely(t, q.Param("time_parts"), should.Match[any]([]string{"0-8", "8-16"}))
			assert.Loosely(t, q.Param("ds_start"), should.Equal[any](civil.Date{Year: 2020, Month: 1, Day: 1}))
			assert.Loosely(t, q.Param("ds_stop"), should.Equal[any](civil.Date{Year: 2020, Month: 1, Day: 3}))
			assert.Loosely(t, q.Param("scale_test_name"), should.BeNil)
		})

		t.Run(`empty sets match the empty value`, func(t *ftt.Test) {
			p.Categories = nil
			p.TimeParts = nil
			q, err := Build(p, tables)
			assert.NoErr(t, err)
			assert.Loosely(t, q.SQL, should.ContainSubstring("AND event_category IN UNNEST(@categories)"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("AND event_time IN UNNEST(@time_parts)"))
			assert.Loosely(t, q.Param("categories"), should.Match[any]([]string{""}))
			assert.Loosely(t, q.Param("time_parts"), should.Match[any]([]string{""}))
		})

		t.Run(`no dates match nothing`, func(t *ftt.Test) {
			p.Dates = nil
			q, err := Build(p, tables)
			assert.NoErr(t, err)
			assert.Loosely(t, strings.Count(q.SQL, "AND FALSE"), should.Equal(2))
			assert.Loosely(t, strings.Contains(q.SQL, "@ds_start"), should.BeFalse)
			assert.Loosely(t, q.Param("ds_start"), should.BeNil)
		})

		t.Run(`scale test filter`, func(t *ftt.Test) {
			p.ScaleTestName = "loadtest1"
			q, err := Build(p, tables)
			assert.NoErr(t, err)
			assert.Loosely(t, strings.Count(q.SQL, "AND STRPOS(file_path, @scale_test_name) > 0"), should.Equal(2))
			assert.Loosely(t, q.SQL, should.NotContainSubstring("LIKE"))
			assert.Loosely(t, q.SQL, should.ContainSubstring("AND event_type = @scale_test_name"))
			assert.Loosely(t, q.Param("scale_test_name"), should.Equal[any]("loadtest1"))
		})

		t.Run(`invalid predicate`, func(t *ftt.Test) {
			p.Dates.Start, p.Dates.Stop = p.Dates.Stop, p.Dates.Start
			_, err := Build(p, tables)
			assert.Loosely(t, errors.Is(err, partition.ErrInvalidRange), should.BeTrue)
		})

		t.Run(`missing table`, func(t *ftt.Test) {
			_, err := Build(p, Tables{Logs: "a.b.c"})
			assert.That(t, err, should.ErrLike("all tables must be set"))
		})
	})
}

type fakeRows struct {
	paths []bigquery.NullString
	err   error
}

func (r *fakeRows) Next(dst any) error {
	if len(r.paths) == 0 {
		if r.err != nil {
			return r.err
		}
		return iterator.Done
	}
	dst.(*filePathRow).FilePath = r.paths[0]
	r.paths = r.paths[1:]
	return nil
}

type fakeRunner struct {
	rows   *fakeRows
	err    error
	called Query
}

func (r *fakeRunner) Run(ctx context.Context, q Query) (Rows, error) {
	r.called = q
	if r.err != nil {
		return nil, r.err
	}
	return r.rows, nil
}

func str(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: true}
}

func TestReader(t *testing.T) {
	t.Parallel()

	ftt.Run(`Reader`, t, func(t *ftt.Test) {
		ctx := context.Background()
		runner := &fakeRunner{rows: &fakeRows{}}
		r := &Reader{Runner: runner}
		q := Query{SQL: "SELECT 1"}

		t.Run(`reads file paths`, func(t *ftt.Test) {
			runner.rows.paths = []bigquery.NullString{str("gs://b/x"), {}, str("gs://b/y")}
			paths, err := r.FilePaths(ctx, q)
			assert.NoErr(t, err)
			assert.Loosely(t, paths, should.Match([]string{"gs://b/x", "gs://b/y"}))
			assert.Loosely(t, runner.called.SQL, should.Equal("SELECT 1"))
		})

		t.Run(`empty result`, func(t *ftt.Test) {
			paths, err := r.FilePaths(ctx, q)
			assert.NoErr(t, err)
			assert.Loosely(t, paths, should.BeEmpty)
		})

		t.Run(`server errors are transient`, func(t *ftt.Test) {
			runner.err = &googleapi.Error{Code: http.StatusInternalServerError}
			_, err := r.FilePaths(ctx, q)
			assert.That(t, err, should.ErrLike("running ingested-set query"))
			assert.Loosely(t, transient.Tag.In(err), should.BeTrue)
		})

		t.Run(`iteration errors`, func(t *ftt.Test) {
			runner.rows.paths = []bigquery.NullString{str("gs://b/x")}
			runner.rows.err = errors.New("boom")
			_, err := r.FilePaths(ctx, q)
			assert.That(t, err, should.ErrLike("reading ingested-set row: boom"))
			assert.Loosely(t, transient.Tag.In(err), should.BeFalse)
		})
	})
}
