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

// Package ingestedset builds and runs the warehouse query that answers
// "which of these files are already ingested?".
//
// A file counts as ingested when the streaming log table has a
// parse_initiated marker for it and its batch id also shows up in either the
// events table or the debug table.
package ingestedset

import (
	"regexp"
	"strings"
	"text/template"

	"cloud.google.com/go/bigquery"

	"go.chromium.org/luci/common/errors"

	"github.com/online-services/analytics-pipeline/internal/partition"
)

// Tables are the fully qualified ("project.dataset.table") tables the query
// reads.
type Tables struct {
	// Logs holds parse_initiated markers written by the streaming path.
	Logs string
	// Debug holds rows that could not be ingested as events.
	Debug string
	// Events holds ingested events.
	Events string
}

// Query is a parameterised standard SQL query.
type Query struct {
	SQL        string
	Parameters []bigquery.QueryParameter
}

var queryTmpl = template.Must(template.New("").Parse(`
{{define "partition"}}
  WHERE event_schema = @event_schema
  AND event_category IN UNNEST(@categories)
  AND analytics_environment IN UNNEST(@environments)
  {{if .HasDates}}AND event_ds BETWEEN @ds_start AND @ds_stop{{else}}AND FALSE{{end}}
  AND event_time IN UNNEST(@time_parts)
  {{if .ScaleTest}}AND STRPOS(file_path, @scale_test_name) > 0{{end}}
{{end}}
SELECT DISTINCT
  a.file_path
FROM (
  SELECT DISTINCT
    file_path,
    batch_id
  FROM ` + "`{{.Tables.Logs}}`" + `
  {{template "partition" .}}
  AND event = 'parse_initiated'
) a
INNER JOIN (
  SELECT batch_id
  FROM ` + "`{{.Tables.Events}}`" + `
  WHERE analytics_environment IN UNNEST(@environments)
  {{if .ScaleTest}}AND event_type = @scale_test_name{{end}}
  UNION DISTINCT
  SELECT batch_id
  FROM ` + "`{{.Tables.Debug}}`" + `
  {{template "partition" .}}
) b
USING (batch_id)
`))

var blankLines = regexp.MustCompile(`\n\s*\n`)

// Build renders the ingested-set query for the predicate.
//
// An empty category or time part list matches only the empty value, and a
// predicate without dates matches nothing.
func Build(p *partition.Predicate, t Tables) (Query, error) {
	if err := p.Validate(); err != nil {
		return Query{}, err
	}
	if t.Logs == "" || t.Debug == "" || t.Events == "" {
		return Query{}, errors.New("all tables must be set")
	}

	in := struct {
		Tables    Tables
		HasDates  bool
		ScaleTest bool
	}{
		Tables:    t,
		HasDates:  p.Dates != nil,
		ScaleTest: p.ScaleTestName != "",
	}
	var sb strings.Builder
	if err := queryTmpl.Execute(&sb, in); err != nil {
		return Query{}, errors.Fmt("rendering query: %w", err)
	}

	params := []bigquery.QueryParameter{
		{Name: "event_schema", Value: p.EventSchema},
		{Name: "categories", Value: orEmpty(p.Categories)},
		{Name: "environments", Value: p.Environments},
		{Name: "time_parts", Value: orEmpty(p.TimeParts)},
	}
	if in.HasDates {
		params = append(params,
			bigquery.QueryParameter{Name: "ds_start", Value: p.Dates.Start},
			bigquery.QueryParameter{Name: "ds_stop", Value: p.Dates.Stop},
		)
	}
	if in.ScaleTest {
		params = append(params, bigquery.QueryParameter{Name: "scale_test_name", Value: p.ScaleTestName})
	}

	return Query{
		SQL:        strings.TrimSpace(blankLines.ReplaceAllString(sb.String(), "\n")) + "\n",
		Parameters: params,
	}, nil
}

func orEmpty(vals []string) []string {
	if len(vals) == 0 {
		return []string{""}
	}
	return vals
}

// Param returns the value of the named parameter, or nil.
func (q Query) Param(name string) any {
	for _, p := range q.Parameters {
		if p.Name == name {
			return p.Value
		}
	}
	return nil
}
