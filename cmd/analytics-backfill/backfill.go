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
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	gcps "go.chromium.org/luci/common/gcloud/pubsub"
	"go.chromium.org/luci/common/logging"

	"github.com/online-services/analytics-pipeline/internal/backfill"
	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/gspath"
	"github.com/online-services/analytics-pipeline/internal/ingestedset"
	"github.com/online-services/analytics-pipeline/internal/listing"
	"github.com/online-services/analytics-pipeline/internal/marker"
	"github.com/online-services/analytics-pipeline/internal/notify"
)

func cmdBackfill(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: `backfill -gcp <project> -location <EU|US> -gcs-bucket <bucket> -event-category <category> [flags]`,
		ShortDesc: "dispatch event files that were never ingested",
		LongDesc: text.Doc(`
			Dispatch event files that were never ingested.

			Lists the event files of the selected partitions, queries the
			warehouse for the files already ingested and, for every file that
			was not, writes a parse_initiated marker and publishes a
			notification to the ingestion topic.

			Running it again over the same partitions dispatches nothing new
			once the markers have landed.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &backfillRun{}
			r.registerBaseFlags(authOpts)
			r.part.register(&r.Flags)
			r.scope = gspath.ScopeFullPath
			r.Flags.StringVar(&r.topic, "topic", backfill.DefaultTopic, text.Doc(`
				Topic to dispatch files to, either a topic name in the -gcp project
				or "projects/<project>/topics/<topic>".
			`))
			r.Flags.Var(&r.scope, "batch-id-scope", `Part of the path marker batch ids are derived from, "path" or "suffix".`)
			r.Flags.IntVar(&r.workers, "workers", backfill.DefaultWorkers, "Number of prefixes listed concurrently.")
			r.Flags.Float64Var(&r.publishQPS, "publish-qps", 0, "Maximum dispatch messages published per second, 0 for no limit.")
			r.Flags.BoolVar(&r.dryRun, "dry-run", false, "Reconcile and print the files to ingest without dispatching them.")
			r.Flags.BoolVar(&r.noManifest, "no-manifest", false, "Do not write the parse list to the bucket.")
			r.Flags.BoolVar(&r.provision, "provision", false, "Create missing datasets and tables before running.")
			return r
		},
	}
}

type backfillRun struct {
	baseCommandRun
	part       partitionFlags
	topic      string
	scope      gspath.Scope
	workers    int
	publishQPS float64
	dryRun     bool
	noManifest bool
	provision  bool
}

func (r *backfillRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	if len(args) != 0 {
		return r.done(ctx, errors.New("unexpected positional arguments"))
	}
	if err := r.validateBase(true); err != nil {
		return r.done(ctx, err)
	}
	pred, envName, timeName, err := r.part.predicate(r.cfg)
	if err != nil {
		return r.done(ctx, err)
	}
	topic := r.topicName()
	if err := topic.Validate(); err != nil {
		return r.done(ctx, errors.Fmt("-topic: %w", err))
	}

	opts := backfill.Options{
		Bucket:    r.part.bucket,
		Predicate: pred,
		Tables:    r.tables(),
		JobName: backfill.JobName(backfill.Method(string(topic)), envName, r.part.category,
			*pred.Dates, timeName, clock.Now(ctx)),
		Scope:   r.scope,
		Workers: r.workers,
		DryRun:  r.dryRun,
	}
	logging.Infof(ctx, "Starting %s", opts.JobName)

	authenticator, err := r.authenticator(ctx)
	if err != nil {
		return r.done(ctx, err)
	}
	tr, err := authenticator.Transport()
	if err != nil {
		return r.done(ctx, err)
	}

	bqClient, err := r.bigQuery(ctx, tr)
	if err != nil {
		return r.done(ctx, err)
	}
	defer bqClient.Close()
	if err := r.ensureAssets(ctx, bqClient, r.provision); err != nil {
		return r.done(ctx, err)
	}

	gs, err := listing.NewStorageClient(ctx, tr)
	if err != nil {
		return r.done(ctx, err)
	}
	defer gs.Close()

	p := &backfill.Pipeline{
		Lister:   gs,
		Ingested: &ingestedset.Reader{Runner: ingestedset.ClientRunner{Client: bqClient}},
		Marker: marker.New(bqutil.NewInserter(
			bqClient.Dataset(r.cfg.Datasets.Logs).Table(r.cfg.Tables.BackfillLogs), 0)),
	}
	if !r.noManifest {
		p.Manifest = gs
	}
	if !r.dryRun {
		ts, err := authenticator.TokenSource()
		if err != nil {
			return r.done(ctx, err)
		}
		pub, err := notify.NewTopicPublisher(ctx, topic, option.WithTokenSource(ts))
		if err != nil {
			return r.done(ctx, err)
		}
		defer pub.Close()
		n := &notify.Notifier{Publisher: pub}
		if r.publishQPS > 0 {
			n.Limiter = rate.NewLimiter(rate.Limit(r.publishQPS), 1)
		}
		p.Dispatcher = n
	}

	s, err := p.Run(ctx, opts)
	if s != nil {
		printSummary(s, r.dryRun)
	}
	if err == nil && (s.MarkFailures > 0 || s.NotifyFailures > 0) {
		err = errors.Fmt("%d markers and %d dispatches failed", s.MarkFailures, s.NotifyFailures)
	}
	return r.done(ctx, err)
}

// topicName resolves -topic against -gcp.
func (r *backfillRun) topicName() gcps.Topic {
	if strings.HasPrefix(r.topic, "projects/") {
		return gcps.Topic(r.topic)
	}
	return gcps.NewTopic(r.project, r.topic)
}

func printSummary(s *backfill.Summary, dryRun bool) {
	n := func(v int) string { return humanize.Comma(int64(v)) }
	fmt.Printf("job:      %s\n", s.JobName)
	fmt.Printf("prefixes: %s\n", n(s.Prefixes))
	fmt.Printf("listed:   %s\n", n(s.Listed))
	fmt.Printf("ingested: %s\n", n(s.Ingested))
	if dryRun {
		fmt.Printf("would dispatch %s files:\n", n(len(s.ToIngest)))
		for _, f := range s.ToIngest {
			fmt.Printf("  %s\n", f)
		}
		return
	}
	fmt.Printf("dispatched: %s\n", n(len(s.ToIngest)-s.NotifyFailures))
	if s.Manifest != "" {
		fmt.Printf("manifest: %s\n", s.Manifest)
	}
}
