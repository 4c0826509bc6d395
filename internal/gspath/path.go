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

// Package gspath encodes and decodes the partitioned Google Storage layout
// used for analytics event files:
//
//	gs://<bucket>/data_type=json/analytics_environment=live/event_category=x/
//	    event_ds=2020-01-01/event_time=0-8/[<scale-test-name>/]<file>
//
// Every partition field is a "key=value" segment. The optional scale test
// name is a bare segment following event_time.
package gspath

import (
	"strings"

	"go.chromium.org/luci/common/gcloud/gs"
)

// Names of the partition fields.
const (
	DataType             = "data_type"
	AnalyticsEnvironment = "analytics_environment"
	EventCategory        = "event_category"
	EventDS              = "event_ds"
	EventTime            = "event_time"
	ScaleTestName        = "scale_test_name"
)

// keyed lists the "key=value" fields in path order.
var keyed = []string{DataType, AnalyticsEnvironment, EventCategory, EventDS, EventTime}

// Path is a Google Storage path, e.g. "gs://bucket/data_type=json/...".
type Path string

// Join makes a Path out of a bucket and an object name.
func Join(bucket, object string) Path {
	return Path(gs.MakePath(bucket, object))
}

// Split returns the bucket and object name components of the Path.
func (p Path) Split() (bucket, object string) {
	return gs.Path(p).Split()
}

// Bucket returns the bucket component of the Path.
func (p Path) Bucket() string {
	b, _ := p.Split()
	return b
}

// Object returns the object name component of the Path.
func (p Path) Object() string {
	_, o := p.Split()
	return o
}

// IsDir is true if the Path ends with "/", i.e. it names a listing prefix or
// a directory placeholder object rather than a file.
func (p Path) IsDir() bool {
	return strings.HasSuffix(string(p), "/")
}

func (p Path) String() string {
	return string(p)
}

// Fields holds partition field values keyed by field name.
//
// A field missing from the map is unset. A field mapped to "" is explicitly
// empty, which is how files without an event category are laid out.
type Fields map[string]string

// Encode builds the directory prefix for the given fields under the bucket.
//
// Unset fields are omitted. The result always ends with "/" so that listing
// it never matches a sibling partition sharing a value prefix (e.g.
// "event_time=0-8" vs "event_time=0-80").
func Encode(bucket string, f Fields) Path {
	var b strings.Builder
	b.WriteString("gs://")
	b.WriteString(strings.TrimRight(bucket, "/"))
	b.WriteByte('/')
	for _, k := range keyed {
		v, ok := f[k]
		if !ok {
			continue
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('/')
	}
	if name := f[ScaleTestName]; name != "" {
		b.WriteString(name)
		b.WriteByte('/')
	}
	return Path(b.String())
}

// Decode returns the value of the named field in p.
//
// ok is false if the field does not appear in the path. That is a valid
// outcome, not an error: e.g. files written before a field was introduced
// simply lack it.
func Decode(p Path, field string) (value string, ok bool) {
	segs := strings.Split(p.Object(), "/")
	if field == ScaleTestName {
		return scaleTestName(segs)
	}
	prefix := field + "="
	for _, s := range segs {
		if v, found := strings.CutPrefix(s, prefix); found {
			return v, true
		}
	}
	return "", false
}

// scaleTestName returns the bare segment that follows event_time, as long as
// it is not the last segment (which is the file name).
func scaleTestName(segs []string) (string, bool) {
	for i, s := range segs {
		if !strings.HasPrefix(s, EventTime+"=") {
			continue
		}
		if i+2 < len(segs) && segs[i+1] != "" {
			return segs[i+1], true
		}
		return "", false
	}
	return "", false
}

// Parse decodes all fields present in p.
func Parse(p Path) Fields {
	f := Fields{}
	for _, k := range keyed {
		if v, ok := Decode(p, k); ok {
			f[k] = v
		}
	}
	if v, ok := Decode(p, ScaleTestName); ok {
		f[ScaleTestName] = v
	}
	return f
}
