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

// Command analytics-ingest is a server that ingests analytics event files
// into BigQuery as Cloud Storage notifications for them arrive over Pub/Sub.
//
// Notifications are pushed to /internal/pubsub/gcs-to-bq, either by a
// Cloud Storage notification config or by analytics-backfill.
package main

import (
	"context"
	"flag"
	"net/http"

	"go.chromium.org/luci/auth/scopes"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/server"
	"go.chromium.org/luci/server/auth"
	"go.chromium.org/luci/server/module"
	"go.chromium.org/luci/server/pubsub"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/config"
	"github.com/online-services/analytics-pipeline/internal/gspath"
	"github.com/online-services/analytics-pipeline/internal/ingest"
	"github.com/online-services/analytics-pipeline/internal/listing"
	"github.com/online-services/analytics-pipeline/internal/marker"
)

func main() {
	scope := gspath.ScopeSuffix
	project := flag.String("warehouse-project", "", text.Doc(`
		Google Cloud project of the warehouse. Defaults to the project the
		server runs in.
	`))
	location := flag.String("warehouse-location", "", `BigQuery location of the datasets, "EU" or "US".`)
	configPath := flag.String("pipeline-config", "", "Optional YAML file overriding dataset and table names.")
	jobName := flag.String("job-name", "function-gcs-to-bq", "Name recorded in the job_name column of the rows this server writes.")
	provision := flag.Bool("provision", true, "Create missing datasets and tables on startup.")
	flag.Var(&scope, "batch-id-scope", `Part of the path marker batch ids are derived from, "path" or "suffix".`)

	modules := []module.Module{
		pubsub.NewModuleFromFlags(),
	}

	server.Main(nil, modules, func(srv *server.Server) error {
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		if *project == "" {
			*project = srv.Options.CloudProject
		}
		if *jobName == "" {
			return errors.New("-job-name is required")
		}

		tr, err := auth.GetRPCTransport(srv.Context, auth.AsSelf, auth.WithScopes(scopes.CloudScopeSet()...))
		if err != nil {
			return err
		}
		h, cleanup, err := newHandler(srv.Context, tr, *project, *location, cfg, *provision)
		if err != nil {
			return err
		}
		srv.RegisterCleanup(cleanup)
		h.JobName = *jobName
		h.Scope = scope

		pubsub.RegisterHandler(ingest.HandlerID, h.Handle)
		logging.Infof(srv.Context, "Ingesting into %s as %q", *project, *jobName)
		return nil
	})
}

// newHandler connects to the warehouse and the bucket and returns a handler
// writing to the tables named by cfg.
func newHandler(ctx context.Context, tr http.RoundTripper, project, location string, cfg *config.Config, provision bool) (*ingest.Handler, func(context.Context), error) {
	bqClient, err := bqutil.NewClient(ctx, project, location, tr)
	if err != nil {
		return nil, nil, err
	}
	if err := bqutil.EnsureAssets(ctx, bqutil.NewCatalog(bqClient), cfg.Assets(), location, provision); err != nil {
		bqClient.Close()
		return nil, nil, errors.Fmt("warehouse is not ready: %w", err)
	}
	gs, err := listing.NewStorageClient(ctx, tr)
	if err != nil {
		bqClient.Close()
		return nil, nil, err
	}

	inserter := func(dataset, table string) *bqutil.Inserter {
		return bqutil.NewInserter(bqClient.Dataset(dataset).Table(table), 0)
	}
	h := &ingest.Handler{
		Objects: gs,
		Logs:    marker.New(inserter(cfg.Datasets.Logs, cfg.Tables.FunctionLogs)),
		Debug:   inserter(cfg.Datasets.Logs, cfg.Tables.FunctionDebug),
		Events:  inserter(cfg.Datasets.Events, cfg.Tables.Events),
	}
	cleanup := func(ctx context.Context) {
		if err := gs.Close(); err != nil {
			logging.Warningf(ctx, "Failed to close the storage client: %s", err)
		}
		if err := bqClient.Close(); err != nil {
			logging.Warningf(ctx, "Failed to close the BigQuery client: %s", err)
		}
	}
	return h, cleanup, nil
}
