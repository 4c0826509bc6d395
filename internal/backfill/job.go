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

package backfill

import (
	"fmt"
	"strings"
	"time"

	"github.com/online-services/analytics-pipeline/internal/partition"
)

// DefaultTopic is the topic the ingestion server subscribes to.
const DefaultTopic = "cloud-function-gcs-to-bq-topic"

// Method names the ingestion method behind a topic: "function" for the
// default topic and "unknown" otherwise. The topic may be a short name or a
// "projects/<p>/topics/<t>" resource name.
func Method(topic string) string {
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		topic = topic[i+1:]
	}
	if topic == DefaultTopic {
		return "function"
	}
	return "unknown"
}

// JobName builds the name of a backfill run, e.g.
// "gcs-to-bq-function-backfill-all-session-2020-01-01-to-2020-01-31-all-1577836800".
func JobName(method, environment, category string, dates partition.DateRange, timePart string, now time.Time) string {
	if category == "" {
		category = partition.CategoryNone
	}
	return fmt.Sprintf("gcs-to-bq-%s-backfill-%s-%s-%s-to-%s-%s-%d",
		method, environment, category, dates.Start, dates.Stop, timePart, now.Unix())
}
