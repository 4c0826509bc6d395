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

// Package reconcile computes which listed files still need to be ingested.
package reconcile

import (
	"go.chromium.org/luci/common/data/stringset"
)

// Group is how many times a key appeared on each side of a co-grouping.
type Group struct {
	Listed   int
	Ingested int
}

// CoGroup groups both collections by key, counting occurrences per side.
//
// Every key present on either side appears in the result.
func CoGroup(listed, ingested []string) map[string]Group {
	groups := make(map[string]Group, len(listed))
	for _, k := range listed {
		g := groups[k]
		g.Listed++
		groups[k] = g
	}
	for _, k := range ingested {
		g := groups[k]
		g.Ingested++
		groups[k] = g
	}
	return groups
}

// Difference returns the keys that were listed at least once and never
// ingested. Duplicates in listed collapse into a single entry.
//
// The result is sorted, but callers should treat it as a set.
func Difference(listed, ingested []string) []string {
	out := stringset.New(0)
	for k, g := range CoGroup(listed, ingested) {
		if g.Listed > 0 && g.Ingested == 0 {
			out.Add(k)
		}
	}
	return out.ToSortedSlice()
}
