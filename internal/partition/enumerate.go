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

package partition

import (
	"iter"

	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// Enumerate returns the storage prefixes covering every partition selected
// by p in the bucket.
//
// The sequence is the cross product of days, environments, categories and
// time parts. It is computed lazily and may be iterated any number of times.
// The range is validated upfront, so an inverted range fails before anything
// is listed.
func Enumerate(bucket string, p *Predicate) (iter.Seq[gspath.Path], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return func(yield func(gspath.Path) bool) {
		if p.Dates == nil {
			return
		}
		for day := range p.Dates.Days() {
			for _, env := range p.Environments {
				for _, cat := range p.Categories {
					for _, tp := range p.TimeParts {
						prefix := gspath.Encode(bucket, gspath.Fields{
							gspath.DataType:             p.EventSchema,
							gspath.AnalyticsEnvironment: env,
							gspath.EventCategory:        cat,
							gspath.EventDS:              day.String(),
							gspath.EventTime:            tp,
							gspath.ScaleTestName:        p.ScaleTestName,
						})
						if !yield(prefix) {
							return
						}
					}
				}
			}
		}
	}, nil
}
