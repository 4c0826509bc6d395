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

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/auth/client/authcli"
	"go.chromium.org/luci/common/errors"
	luciflag "go.chromium.org/luci/common/flag"
	"go.chromium.org/luci/common/logging"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/config"
	"github.com/online-services/analytics-pipeline/internal/ingestedset"
	"github.com/online-services/analytics-pipeline/internal/partition"
)

// baseCommandRun holds the flags every subcommand shares.
type baseCommandRun struct {
	subcommands.CommandRunBase
	authFlags  authcli.Flags
	project    string
	location   string
	configPath string

	cfg *config.Config
}

func (r *baseCommandRun) registerBaseFlags(defaultAuthOpts auth.Options) {
	r.Flags.StringVar(&r.project, "gcp", "", "Google Cloud project that hosts the bucket, the warehouse and the topic.")
	r.Flags.StringVar(&r.location, "location", "", `BigQuery location of the datasets, "EU" or "US".`)
	r.Flags.StringVar(&r.configPath, "config", "", "Optional YAML file overriding dataset and table names.")
	r.authFlags.Register(&r.Flags, defaultAuthOpts)
}

// validateBase checks the shared flags and loads the config.
//
// The location is only checked by subcommands that talk to BigQuery.
func (r *baseCommandRun) validateBase(needLocation bool) error {
	switch {
	case r.project == "":
		return errors.New("-gcp is required")
	case needLocation && r.location != "EU" && r.location != "US":
		return errors.Fmt("-location must be EU or US, got %q", r.location)
	}
	var err error
	r.cfg, err = config.Load(r.configPath)
	return err
}

func (r *baseCommandRun) authenticator(ctx context.Context) (*auth.Authenticator, error) {
	opts, err := r.authFlags.Options()
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(ctx, auth.SilentLogin, opts), nil
}

func (r *baseCommandRun) bigQuery(ctx context.Context, tr http.RoundTripper) (*bigquery.Client, error) {
	return bqutil.NewClient(ctx, r.project, r.location, tr)
}

// ensureAssets checks the warehouse tables exist, creating them if provision
// is set.
func (r *baseCommandRun) ensureAssets(ctx context.Context, client *bigquery.Client, provision bool) error {
	return bqutil.EnsureAssets(ctx, bqutil.NewCatalog(client), r.cfg.Assets(), r.location, provision)
}

// tables returns the fully qualified tables the ingested-set query reads.
func (r *baseCommandRun) tables() ingestedset.Tables {
	q := func(dataset, table string) string {
		return fmt.Sprintf("%s.%s.%s", r.project, dataset, table)
	}
	return ingestedset.Tables{
		Logs:   q(r.cfg.Datasets.Logs, r.cfg.Tables.FunctionLogs),
		Debug:  q(r.cfg.Datasets.Logs, r.cfg.Tables.FunctionDebug),
		Events: q(r.cfg.Datasets.Events, r.cfg.Tables.Events),
	}
}

func (r *baseCommandRun) done(ctx context.Context, err error) int {
	if err != nil {
		logging.Errorf(ctx, "%s", err)
		return 1
	}
	return 0
}

// partitionFlags select the partitions to reconcile.
type partitionFlags struct {
	bucket        string
	environment   string
	category      string
	start, stop   time.Time
	timePart      string
	scaleTestName string
	eventSchema   string
}

func (f *partitionFlags) register(fs *flag.FlagSet) {
	f.start = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	f.stop = time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)

	fs.StringVar(&f.bucket, "gcs-bucket", "", "Bucket holding the event files.")
	fs.StringVar(&f.environment, "analytics-environment", partition.All,
		`Analytics environment to backfill, "all" or one of testing, development, staging, production, live.`)
	fs.StringVar(&f.category, "event-category", "",
		`Event category to backfill. "none" selects files stored without a category.`)
	fs.Var(luciflag.Date(&f.start), "event-ds-start", "First event date to backfill; format: 2020-01-02")
	fs.Var(luciflag.Date(&f.stop), "event-ds-stop", "Last event date to backfill, inclusive; format: 2020-01-02")
	fs.StringVar(&f.timePart, "event-time", partition.All,
		`Event time bucket to backfill, "all" or one of 0-8, 8-16, 16-24.`)
	fs.StringVar(&f.scaleTestName, "scale-test-name", "", "Restrict the backfill to the files of this scale test.")
	fs.StringVar(&f.eventSchema, "event-schema", "json", "data_type of the event files.")
}

// predicate validates the flags and builds the predicate they select.
//
// envName and timeName are the labels of the selection used in job names.
func (f *partitionFlags) predicate(cfg *config.Config) (p *partition.Predicate, envName, timeName string, err error) {
	switch {
	case f.bucket == "":
		return nil, "", "", errors.New("-gcs-bucket is required")
	case f.category == "":
		return nil, "", "", errors.Fmt("-event-category is required, use %q for files without a category", partition.CategoryNone)
	}
	envs, envName, err := partition.Expand(f.environment, cfg.Environments)
	if err != nil {
		return nil, "", "", errors.Fmt("-analytics-environment: %w", err)
	}
	timeParts, timeName, err := partition.Expand(f.timePart, cfg.TimeParts)
	if err != nil {
		return nil, "", "", errors.Fmt("-event-time: %w", err)
	}
	dates, err := partition.NewDateRange(civil.DateOf(f.start), civil.DateOf(f.stop))
	if err != nil {
		return nil, "", "", err
	}
	p = &partition.Predicate{
		EventSchema:   f.eventSchema,
		Categories:    []string{partition.Category(f.category)},
		Environments:  envs,
		Dates:         &dates,
		TimeParts:     timeParts,
		ScaleTestName: f.scaleTestName,
	}
	return p, envName, timeName, p.Validate()
}
