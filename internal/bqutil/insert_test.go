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
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/clock/testclock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

type row string

func (r row) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{"v": string(r)}, string(r), nil
}

type fakePutter struct {
	mu      sync.Mutex
	batches [][]bigquery.ValueSaver
	// respond is called with the 0-based call number and the batch.
	respond func(call int, batch []bigquery.ValueSaver) error
}

func (f *fakePutter) Put(ctx context.Context, src any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := src.([]bigquery.ValueSaver)
	call := len(f.batches)
	f.batches = append(f.batches, append([]bigquery.ValueSaver(nil), batch...))
	if f.respond == nil {
		return nil
	}
	return f.respond(call, batch)
}

func rows(vals ...string) []bigquery.ValueSaver {
	out := make([]bigquery.ValueSaver, len(vals))
	for i, v := range vals {
		out[i] = row(v)
	}
	return out
}

// rowErrors unpacks the per-row errors returned by Put.
func rowErrors(t testing.TB, err error) errors.MultiError {
	t.Helper()
	var errs errors.MultiError
	if !errors.As(err, &errs) {
		t.Fatalf("want a MultiError, got %v", err)
	}
	return errs
}

func TestInserter(t *testing.T) {
	t.Parallel()

	ftt.Run(`Inserter`, t, func(t *ftt.Test) {
		ctx, tc := testclock.UseTime(context.Background(), testclock.TestRecentTimeUTC)
		tc.SetTimerCallback(func(d time.Duration, t clock.Timer) { tc.Add(d) })

		p := &fakePutter{}
		ins := NewInserterFromPutter(p, 2)

		t.Run(`batches`, func(t *ftt.Test) {
			assert.NoErr(t, ins.Put(ctx, rows("a", "b", "c", "d", "e")))
			assert.Loosely(t, p.batches, should.HaveLength(3))
			assert.Loosely(t, p.batches[2], should.Match(rows("e")))
		})

		t.Run(`no rows`, func(t *ftt.Test) {
			assert.NoErr(t, ins.Put(ctx, nil))
			assert.Loosely(t, p.batches, should.BeEmpty)
		})

		t.Run(`default batch size`, func(t *ftt.Test) {
			assert.Loosely(t, NewInserterFromPutter(p, 0).batchSize, should.Equal(DefaultBatchSize))
		})

		t.Run(`row errors are isolated`, func(t *ftt.Test) {
			ins := NewInserterFromPutter(p, 10)
			p.respond = func(call int, batch []bigquery.ValueSaver) error {
				return bigquery.PutMultiError{{
					InsertID: "b",
					RowIndex: 1,
					Errors:   bigquery.MultiError{errors.New("no such field: bogus")},
				}}
			}
			errs := rowErrors(t, ins.Put(ctx, rows("a", "b", "c")))
			assert.Loosely(t, errs, should.HaveLength(3))
			assert.Loosely(t, errs[0], should.BeNil)
			assert.That(t, errs[1], should.ErrLike("no such field: bogus"))
			assert.Loosely(t, errs[2], should.BeNil)
			assert.Loosely(t, p.batches, should.HaveLength(1))
		})

		t.Run(`row errors are offset by batch`, func(t *ftt.Test) {
			p.respond = func(call int, batch []bigquery.ValueSaver) error {
				if call == 1 {
					return bigquery.PutMultiError{{RowIndex: 0, Errors: bigquery.MultiError{errors.New("bad row")}}}
				}
				return nil
			}
			errs := rowErrors(t, ins.Put(ctx, rows("a", "b", "c")))
			assert.Loosely(t, errs[0], should.BeNil)
			assert.Loosely(t, errs[1], should.BeNil)
			assert.That(t, errs[2], should.ErrLike("row 2: bad row"))
		})

		t.Run(`transient errors are retried`, func(t *ftt.Test) {
			p.respond = func(call int, batch []bigquery.ValueSaver) error {
				if call < 2 {
					return &googleapi.Error{Code: http.StatusServiceUnavailable}
				}
				return nil
			}
			assert.NoErr(t, ins.Put(ctx, rows("a")))
			assert.Loosely(t, p.batches, should.HaveLength(3))
		})

		t.Run(`a failed batch fails all its rows and the rest carry on`, func(t *ftt.Test) {
			p.respond = func(call int, batch []bigquery.ValueSaver) error {
				if call == 0 {
					return &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid"}
				}
				return nil
			}
			errs := rowErrors(t, ins.Put(ctx, rows("a", "b", "c")))
			assert.Loosely(t, errs, should.HaveLength(3))
			assert.That(t, errs[0], should.ErrLike("putting batch 0"))
			assert.That(t, errs[1], should.ErrLike("putting batch 0"))
			assert.Loosely(t, errs[2], should.BeNil)
			assert.Loosely(t, p.batches, should.HaveLength(2))
		})

		t.Run(`a clean put is a nil error`, func(t *ftt.Test) {
			var err error = ins.Put(ctx, rows("a", "b", "c"))
			assert.Loosely(t, err == nil, should.BeTrue)
		})
	})

	ftt.Run(`RowErrors`, t, func(t *ftt.Test) {
		assert.Loosely(t, RowErrors(nil, 3), should.BeNil)

		merr := errors.MultiError{nil, errors.New("bad row")}
		assert.Loosely(t, RowErrors(merr, 2), should.HaveLength(2))

		errs := RowErrors(errors.New("boom"), 2)
		assert.Loosely(t, errs, should.HaveLength(2))
		assert.That(t, errs[1], should.ErrLike("boom"))
	})
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	ftt.Run(`IsTransient`, t, func(t *ftt.Test) {
		quota := &googleapi.Error{
			Code:   http.StatusForbidden,
			Errors: []googleapi.ErrorItem{{Reason: "quotaExceeded"}},
		}
		denied := &googleapi.Error{
			Code:   http.StatusForbidden,
			Errors: []googleapi.ErrorItem{{Reason: "accessDenied"}},
		}
		assert.Loosely(t, IsTransient(quota), should.BeTrue)
		assert.Loosely(t, IsTransient(errors.Fmt("wrapped: %w", quota)), should.BeTrue)
		assert.Loosely(t, IsTransient(&googleapi.Error{Code: http.StatusTooManyRequests}), should.BeTrue)
		assert.Loosely(t, IsTransient(&googleapi.Error{Code: http.StatusBadGateway}), should.BeTrue)
		assert.Loosely(t, IsTransient(denied), should.BeFalse)
		assert.Loosely(t, IsTransient(errors.New("boom")), should.BeFalse)
		assert.Loosely(t, FatalError(denied), should.BeTrue)
		assert.Loosely(t, FatalError(quota), should.BeFalse)
	})
}
