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

// Package partition describes which slice of the analytics event files a
// run is concerned with, and enumerates the storage prefixes of that slice.
package partition

import (
	"iter"
	"slices"

	"cloud.google.com/go/civil"

	"go.chromium.org/luci/common/errors"
)

const (
	// All selects every known environment or time part.
	All = "all"
	// CategoryNone selects files stored without an event category, i.e.
	// under an "event_category=" segment.
	CategoryNone = "none"
)

var (
	// DefaultEnvironments is what All expands to for environments.
	DefaultEnvironments = []string{"testing", "development", "staging", "production", "live"}
	// DefaultTimeParts is what All expands to for time parts.
	DefaultTimeParts = []string{"0-8", "8-16", "16-24"}
)

// ErrInvalidRange is returned when a date range starts after it stops.
var ErrInvalidRange = errors.New("event_ds start cannot be later than event_ds stop")

// DateRange is an inclusive range of event dates.
type DateRange struct {
	Start civil.Date
	Stop  civil.Date
}

// NewDateRange validates and returns a DateRange.
func NewDateRange(start, stop civil.Date) (DateRange, error) {
	r := DateRange{Start: start, Stop: stop}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// ParseDateRange parses two ISO dates ("2020-01-31").
func ParseDateRange(start, stop string) (DateRange, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return DateRange{}, errors.Fmt("bad start date %q: %w", start, err)
	}
	e, err := civil.ParseDate(stop)
	if err != nil {
		return DateRange{}, errors.Fmt("bad stop date %q: %w", stop, err)
	}
	return NewDateRange(s, e)
}

// Validate returns ErrInvalidRange if Start is after Stop.
func (r DateRange) Validate() error {
	switch {
	case !r.Start.IsValid() || !r.Stop.IsValid():
		return errors.Fmt("invalid date range [%s, %s]", r.Start, r.Stop)
	case r.Start.After(r.Stop):
		return errors.Fmt("[%s, %s]: %w", r.Start, r.Stop, ErrInvalidRange)
	}
	return nil
}

// Days yields every day in the range, in order.
func (r DateRange) Days() iter.Seq[civil.Date] {
	return func(yield func(civil.Date) bool) {
		for d := r.Start; !d.After(r.Stop); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Predicate selects a set of partitions. It is built once per run and must
// not be modified afterwards.
type Predicate struct {
	// EventSchema is the data_type of the files, e.g. "json".
	EventSchema string
	// Categories are event categories to match. An empty string matches files
	// stored without a category. An empty slice matches nothing.
	Categories []string
	// Environments are analytics environments to match.
	Environments []string
	// Dates is the event date range. Nil matches nothing.
	Dates *DateRange
	// TimeParts are event_time buckets to match.
	TimeParts []string
	// ScaleTestName, if set, restricts the match to files of that scale test.
	ScaleTestName string
}

// Validate checks the predicate is usable for enumeration and querying.
func (p *Predicate) Validate() error {
	switch {
	case p.EventSchema == "":
		return errors.New("event schema is required")
	case len(p.Environments) == 0:
		return errors.New("at least one analytics environment is required")
	case p.Dates != nil:
		return p.Dates.Validate()
	}
	return nil
}

// Category converts a category flag value into the value stored in paths.
// CategoryNone and "" both mean "no category".
func Category(flagValue string) string {
	if flagValue == CategoryNone {
		return ""
	}
	return flagValue
}

// Expand resolves a selector flag against the known values: All expands to
// every known value, anything else must be one of them.
//
// name is the label the selection goes by in job names.
func Expand(selector string, known []string) (values []string, name string, err error) {
	if selector == All {
		return slices.Clone(known), All, nil
	}
	if !slices.Contains(known, selector) {
		return nil, "", errors.Fmt("unknown value %q, want %q or one of %q", selector, All, known)
	}
	return []string{selector}, selector, nil
}
