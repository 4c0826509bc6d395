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

// Package backfill finds the event files of a partition range that were
// never ingested and dispatches them for ingestion.
//
// A run lists the candidate files in Cloud Storage and, concurrently, queries
// BigQuery for the files already ingested. Once both sides are complete it
// takes the difference, writes a parse_initiated marker per remaining file
// and publishes a dispatch message per remaining file.
package backfill

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/clock"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/sync/parallel"

	"github.com/online-services/analytics-pipeline/internal/gspath"
	"github.com/online-services/analytics-pipeline/internal/ingestedset"
	"github.com/online-services/analytics-pipeline/internal/listing"
	"github.com/online-services/analytics-pipeline/internal/marker"
	"github.com/online-services/analytics-pipeline/internal/partition"
	"github.com/online-services/analytics-pipeline/internal/reconcile"
)

// DefaultWorkers is the default listing concurrency.
const DefaultWorkers = 16

// IngestedReader reads the ingested set. Implemented by *ingestedset.Reader.
type IngestedReader interface {
	FilePaths(ctx context.Context, q ingestedset.Query) ([]string, error)
}

// Appender appends markers. Implemented by *marker.Marker.
type Appender interface {
	Append(ctx context.Context, records []*marker.Record) error
}

// Dispatcher dispatches files. Implemented by *notify.Notifier.
type Dispatcher interface {
	NotifyAll(ctx context.Context, paths []gspath.Path, jobName string) error
}

// Pipeline holds the collaborators of a backfill run.
type Pipeline struct {
	Lister   listing.Lister
	Ingested IngestedReader
	// Manifest receives the parse list. Optional.
	Manifest   listing.ObjectWriter
	Marker     Appender
	Dispatcher Dispatcher
}

// Options configure one run.
type Options struct {
	Bucket    string
	Predicate *partition.Predicate
	Tables    ingestedset.Tables
	JobName   string
	// Scope is how marker batch ids are computed.
	Scope gspath.Scope
	// Workers bounds concurrent listings. Defaults to DefaultWorkers.
	Workers int
	// DryRun stops after reconciliation.
	DryRun bool
}

// Summary describes a run.
type Summary struct {
	JobName  string
	Prefixes int
	Listed   int
	Ingested int
	// ToIngest are the files that were (or, in a dry run, would be)
	// dispatched.
	ToIngest []string
	// Manifest is where the parse list was written, if anywhere.
	Manifest       gspath.Path
	MarkFailures   int
	NotifyFailures int
}

// Plan returns the prefixes to list and the ingested-set query of a run.
func Plan(opts Options) ([]gspath.Path, ingestedset.Query, error) {
	seq, err := partition.Enumerate(opts.Bucket, opts.Predicate)
	if err != nil {
		return nil, ingestedset.Query{}, err
	}
	q, err := ingestedset.Build(opts.Predicate, opts.Tables)
	if err != nil {
		return nil, ingestedset.Query{}, err
	}
	return slices.Collect(seq), q, nil
}

// Run runs the backfill.
//
// Errors before reconciliation (bad options, listing or query failures) fail
// the run with nothing written. Per-file marker and dispatch failures are
// logged and counted in the summary; the run carries on with the other
// files.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	prefixes, q, err := Plan(opts)
	if err != nil {
		return nil, err
	}
	ctx = logging.SetField(ctx, "job", opts.JobName)
	s := &Summary{JobName: opts.JobName, Prefixes: len(prefixes)}

	var listed, ingested []string
	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		listed, err = p.list(ectx, prefixes, opts.Workers)
		return err
	})
	eg.Go(func() (err error) {
		ingested, err = p.Ingested.FilePaths(ectx, q)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	s.Listed = len(listed)
	s.Ingested = len(ingested)
	s.ToIngest = reconcile.Difference(listed, ingested)
	logging.Infof(ctx, "Listed %d files under %d prefixes, %d already ingested, %d to ingest",
		s.Listed, s.Prefixes, s.Ingested, len(s.ToIngest))

	if opts.DryRun || len(s.ToIngest) == 0 {
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.Manifest != nil {
		if s.Manifest, err = listing.WriteManifest(ctx, p.Manifest, opts.Bucket, opts.JobName, s.ToIngest); err != nil {
			return nil, err
		}
	}

	now := clock.Now(ctx)
	files := make([]gspath.Path, len(s.ToIngest))
	records := make([]*marker.Record, len(s.ToIngest))
	for i, f := range s.ToIngest {
		files[i] = gspath.Path(f)
		records[i] = marker.Mark(files[i], opts.JobName, opts.Scope, now)
	}
	var markErr, notifyErr error
	_ = parallel.FanOutIn(func(work chan<- func() error) {
		work <- func() error {
			markErr = p.Marker.Append(ctx, records)
			return nil
		}
		work <- func() error {
			notifyErr = p.Dispatcher.NotifyAll(ctx, files, opts.JobName)
			return nil
		}
	})
	s.MarkFailures = countErrs(markErr, len(records))
	s.NotifyFailures = countErrs(notifyErr, len(files))
	if s.MarkFailures > 0 || s.NotifyFailures > 0 {
		logging.Warningf(ctx, "%d markers and %d dispatches failed", s.MarkFailures, s.NotifyFailures)
	}
	return s, ctx.Err()
}

// list lists every prefix, at most workers at a time.
func (p *Pipeline) list(ctx context.Context, prefixes []gspath.Path, workers int) ([]string, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var mu sync.Mutex
	var out []string
	err := parallel.WorkPool(workers, func(work chan<- func() error) {
		for _, prefix := range prefixes {
			work <- func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				files, err := p.Lister.List(ctx, prefix)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				for _, f := range files {
					out = append(out, f.String())
				}
				return nil
			}
		}
	})
	if err != nil {
		var merr errors.MultiError
		if errors.As(err, &merr) {
			if n, first := merr.Summary(); first != nil {
				return nil, errors.Fmt("listing files (%d prefixes failed): %w", n, first)
			}
		}
		return nil, errors.Fmt("listing files: %w", err)
	}
	return out, nil
}

// countErrs counts the failed items of an n-item operation that reports
// per-item errors as an errors.MultiError.
func countErrs(err error, n int) int {
	if err == nil {
		return 0
	}
	var merr errors.MultiError
	if !errors.As(err, &merr) {
		return n
	}
	failed, _ := merr.Summary()
	return failed
}
