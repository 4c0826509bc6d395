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
	"sort"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"

	"github.com/online-services/analytics-pipeline/internal/backfill"
)

var cmdPlan = &subcommands.Command{
	UsageLine: `plan -gcp <project> -gcs-bucket <bucket> -event-category <category> [flags]`,
	ShortDesc: "print what a backfill would list and query",
	LongDesc: text.Doc(`
		Print the prefixes a backfill would list and the query it would run
		to find the files already ingested.

		Talks to no service.
	`),
	CommandRun: func() subcommands.CommandRun {
		r := &planRun{}
		r.Flags.StringVar(&r.project, "gcp", "", "Google Cloud project that hosts the warehouse.")
		r.Flags.StringVar(&r.configPath, "config", "", "Optional YAML file overriding dataset and table names.")
		r.part.register(&r.Flags)
		return r
	},
}

type planRun struct {
	baseCommandRun
	part partitionFlags
}

func (r *planRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	if len(args) != 0 {
		return r.done(ctx, errors.New("unexpected positional arguments"))
	}
	if err := r.validateBase(false); err != nil {
		return r.done(ctx, err)
	}
	pred, _, _, err := r.part.predicate(r.cfg)
	if err != nil {
		return r.done(ctx, err)
	}
	prefixes, q, err := backfill.Plan(backfill.Options{
		Bucket:    r.part.bucket,
		Predicate: pred,
		Tables:    r.tables(),
	})
	if err != nil {
		return r.done(ctx, err)
	}

	fmt.Printf("%d prefixes:\n", len(prefixes))
	for _, p := range prefixes {
		fmt.Printf("  %s\n", p)
	}
	fmt.Printf("\nquery:\n%s\nparameters:\n", q.SQL)
	names := make([]string, 0, len(q.Parameters))
	for _, p := range q.Parameters {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("  @%s = %v\n", n, q.Param(n))
	}
	return 0
}
