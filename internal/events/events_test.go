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
	"bytes"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func gzipped(t testing.TB, s string) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParse(t *testing.T) {
	t.Parallel()

	ftt.Run(`Parse`, t, func(t *ftt.Test) {
		t.Run(`object is a batch of one`, func(t *ftt.Test) {
			p, err := Parse([]byte(`{"eventClass": "session"}`))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Elements, should.HaveLength(1))
			assert.Loosely(t, p.Raw, should.BeEmpty)
		})

		t.Run(`array`, func(t *ftt.Test) {
			p, err := Parse([]byte(`[{"a": 1}, {"b": 2}, 3]`))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Elements, should.HaveLength(3))
		})

		t.Run(`newline delimited`, func(t *ftt.Test) {
			p, err := Parse([]byte("{\"a\": 1}\n\n{\"b\": 2}\n"))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Elements, should.HaveLength(2))
		})

		t.Run(`not json`, func(t *ftt.Test) {
			p, err := Parse([]byte("hello\nworld"))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Elements, should.BeNil)
			assert.Loosely(t, p.Raw, should.Equal("hello\nworld"))
		})

		t.Run(`json scalar is raw`, func(t *ftt.Test) {
			p, err := Parse([]byte(`"just a string"`))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Raw, should.Equal(`"just a string"`))
		})

		t.Run(`gzip`, func(t *ftt.Test) {
			p, err := Parse(gzipped(t, `[{"a": 1}, {"b": 2}]`))
			assert.NoErr(t, err)
			assert.Loosely(t, p.Elements, should.HaveLength(2))
		})

		t.Run(`corrupt gzip`, func(t *ftt.Test) {
			_, err := Parse([]byte{0x1f, 0x8b, 0x00})
			assert.That(t, err, should.ErrLike("gzip"))
		})
	})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	ftt.Run(`Normalize`, t, func(t *ftt.Test) {
		p, err := Parse([]byte(`{
			"eventClass": "session",
			"analytics_environment": "live",
			"batchId": "b1",
			"eventId": "e1",
			"eventIndex": 7,
			"eventSource": "client",
			"event_type": "loadtest1",
			"sessionId": "s1",
			"buildVersion": "1.2.3",
			"eventEnvironment": "debug",
			"eventTimestamp": "2020-01-01T10:00:00Z",
			"received_timestamp": 1577872800,
			"eventAttributes": {"map": "x", "n": 1}
		}`))
		assert.NoErr(t, err)

		ev, ok := Normalize(p.Elements[0], "job-1", now)
		assert.Loosely(t, ok, should.BeTrue)
		assert.Loosely(t, ev.EventClass, should.Equal("session"))
		assert.Loosely(t, ev.AnalyticsEnvironment.StringVal, should.Equal("live"))
		assert.Loosely(t, ev.BatchID.StringVal, should.Equal("b1"))
		assert.Loosely(t, ev.EventIndex, should.Match(bigquery.NullInt64{Int64: 7, Valid: true}))
		assert.Loosely(t, ev.EventType.StringVal, should.Equal("loadtest1"))
		assert.Loosely(t, ev.EventEnvironment.StringVal, should.Equal("debug"))
		assert.Loosely(t, ev.EventTimestamp.Timestamp, should.Match(time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)))
		assert.Loosely(t, ev.ReceivedTimestamp.Timestamp, should.Match(time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)))
		assert.Loosely(t, ev.InsertedTimestamp, should.Match(now))
		assert.Loosely(t, ev.JobName, should.Equal("job-1"))

		var attrs map[string]any
		assert.NoErr(t, json.Unmarshal([]byte(ev.EventAttributes.StringVal), &attrs))
		assert.Loosely(t, attrs["map"], should.Equal[any]("x"))

		row, insertID, err := ev.Save()
		assert.NoErr(t, err)
		assert.Loosely(t, insertID, should.NotEqual(""))
		assert.Loosely(t, row, should.HaveLength(len(aliases)+2))

		t.Run(`first alias wins`, func(t *ftt.Test) {
			ev, ok := Normalize(map[string]any{"eventClass": "a", "event_class": "b"}, "j", now)
			assert.Loosely(t, ok, should.BeTrue)
			assert.Loosely(t, ev.EventClass, should.Equal("a"))
			assert.Loosely(t, ev.SessionID.Valid, should.BeFalse)
		})

		t.Run(`no event class`, func(t *ftt.Test) {
			_, ok := Normalize(map[string]any{"sessionId": "s"}, "j", now)
			assert.Loosely(t, ok, should.BeFalse)
			_, ok = Normalize(map[string]any{"eventClass": nil}, "j", now)
			assert.Loosely(t, ok, should.BeFalse)
			_, ok = Normalize([]any{"x"}, "j", now)
			assert.Loosely(t, ok, should.BeFalse)
		})
	})

	ftt.Run(`CastToTimestamp`, t, func(t *ftt.Test) {
		want := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
		for _, v := range []any{
			"2020-01-01T10:00:00Z",
			"2020-01-01 10:00:00 UTC",
			"2020-01-01T11:00:00+01:00",
			"1577872800",
			json.Number("1577872800"),
		} {
			ts := CastToTimestamp(v)
			assert.Loosely(t, ts.Valid, should.BeTrue, truth.Explain("%v", v))
			assert.Loosely(t, ts.Timestamp, should.Match(want), truth.Explain("%v", v))
		}

		half := CastToTimestamp(json.Number("1577872800.5"))
		assert.Loosely(t, half.Timestamp, should.Match(want.Add(500*time.Millisecond)))

		assert.Loosely(t, CastToTimestamp("yesterday").Valid, should.BeFalse)
		assert.Loosely(t, CastToTimestamp(nil).Valid, should.BeFalse)
		assert.Loosely(t, CastToTimestamp(true).Valid, should.BeFalse)
	})

	ftt.Run(`CastToString`, t, func(t *ftt.Test) {
		assert.Loosely(t, CastToString(nil).Valid, should.BeFalse)
		assert.Loosely(t, CastToString("x").StringVal, should.Equal("x"))
		assert.Loosely(t, CastToString(json.Number("1.5")).StringVal, should.Equal("1.5"))
		assert.Loosely(t, CastToString(false).StringVal, should.Equal("false"))
		assert.Loosely(t, CastToString([]any{"a", json.Number("1")}).StringVal, should.Equal(`["a",1]`))
	})
}
