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
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/auth"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/data/text"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

func cmdProvision(authOpts auth.Options) *subcommands.Command {
	return &subcommands.Command{
		UsageLine: `provision -gcp <project> -location <EU|US> [-config <path>]`,
		ShortDesc: "create the warehouse datasets and tables",
		LongDesc: text.Doc(`
			Create the warehouse datasets and tables.

			Missing datasets are created in -location and missing tables are
			created day-partitioned. Columns missing from existing tables are
			added; nothing is ever removed.
		`),
		CommandRun: func() subcommands.CommandRun {
			r := &provisionRun{}
			r.registerBaseFlags(authOpts)
			return r
		},
	}
}

type provisionRun struct {
	baseCommandRun
}

func (r *provisionRun) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, r, env)
	if len(args) != 0 {
		return r.done(ctx, errors.New("unexpected positional arguments"))
	}
	if err := r.validateBase(true); err != nil {
		return r.done(ctx, err)
	}
	authenticator, err := r.authenticator(ctx)
	if err != nil {
		return r.done(ctx, err)
	}
	tr, err := authenticator.Transport()
	if err != nil {
		return r.done(ctx, err)
	}
	client, err := r.bigQuery(ctx, tr)
	if err != nil {
		return r.done(ctx, err)
	}
	defer client.Close()
	if err := r.ensureAssets(ctx, client, true); err != nil {
		return r.done(ctx, err)
	}
	for _, a := range r.cfg.Assets() {
		logging.Infof(ctx, "%s.%s is ready", r.project, a)
	}
	return 0
}
