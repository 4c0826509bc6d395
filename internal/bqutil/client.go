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

// Package bqutil contains the BigQuery plumbing shared by the backfill job
// and the ingestion server: client construction, batched inserts, table
// schemas and asset provisioning.
package bqutil

import (
	"context"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
)

// NewClient returns a BigQuery client for the project that runs queries in
// the given location ("EU", "US", or "" for the default).
//
// The client authenticates with the transport, which callers obtain from
// their auth layer (authcli in the CLI, server/auth in the server).
func NewClient(ctx context.Context, project, location string, tr http.RoundTripper) (*bigquery.Client, error) {
	if project == "" {
		return nil, errors.New("GCP project must be specified")
	}
	c, err := bigquery.NewClient(ctx, project, option.WithHTTPClient(&http.Client{Transport: tr}))
	if err != nil {
		return nil, errors.Fmt("creating BigQuery client: %w", err)
	}
	c.Location = location
	return c, nil
}
