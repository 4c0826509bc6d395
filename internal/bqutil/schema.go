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
	"cloud.google.com/go/bigquery"
)

// LogSchema is the schema of the marker and debug tables.
//
// Markers carry event = "parse_initiated"; debug rows carry the payload that
// could not be ingested, serialised as JSON.
var LogSchema = bigquery.Schema{
	{Name: "job_name", Type: bigquery.StringFieldType, Description: "Name of the job that wrote the row."},
	{Name: "processed_timestamp", Type: bigquery.TimestampFieldType},
	{Name: "batch_id", Type: bigquery.StringFieldType, Description: "MD5 of the file path, or of its last two segments."},
	{Name: "event_schema", Type: bigquery.StringFieldType, Description: "The data_type of the file."},
	{Name: "analytics_environment", Type: bigquery.StringFieldType},
	{Name: "event_category", Type: bigquery.StringFieldType},
	{Name: "event_ds", Type: bigquery.DateFieldType},
	{Name: "event_time", Type: bigquery.StringFieldType},
	{Name: "event", Type: bigquery.StringFieldType},
	{Name: "file_path", Type: bigquery.StringFieldType},
}

// EventSchema is the schema of the events table.
var EventSchema = bigquery.Schema{
	{Name: "event_class", Type: bigquery.StringFieldType},
	{Name: "analytics_environment", Type: bigquery.StringFieldType},
	{Name: "batch_id", Type: bigquery.StringFieldType},
	{Name: "event_id", Type: bigquery.StringFieldType},
	{Name: "event_index", Type: bigquery.IntegerFieldType},
	{Name: "event_source", Type: bigquery.StringFieldType},
	{Name: "event_type", Type: bigquery.StringFieldType},
	{Name: "session_id", Type: bigquery.StringFieldType},
	{Name: "build_version", Type: bigquery.StringFieldType},
	{Name: "event_environment", Type: bigquery.StringFieldType},
	{Name: "event_timestamp", Type: bigquery.TimestampFieldType},
	{Name: "received_timestamp", Type: bigquery.TimestampFieldType},
	{Name: "inserted_timestamp", Type: bigquery.TimestampFieldType},
	{Name: "job_name", Type: bigquery.StringFieldType},
	{Name: "event_attributes", Type: bigquery.StringFieldType, Description: "Event attributes serialised as JSON."},
}
