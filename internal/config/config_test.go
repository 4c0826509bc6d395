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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.chromium.org/luci/common/testing/ftt"
	"go.chromium.org/luci/common/testing/truth/assert"
	"go.chromium.org/luci/common/testing/truth/should"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	ftt.Run(`Load`, t, func(t *ftt.Test) {
		dir := t.TempDir()
		write := func(body string) string {
			p := filepath.Join(dir, "config.yaml")
			assert.NoErr(t, os.WriteFile(p, []byte(body), 0600))
			return p
		}

		t.Run(`defaults`, func(t *ftt.Test) {
			cfg, err := Load("")
			assert.NoErr(t, err)
			assert.Loosely(t, cfg, should.Match(Default()))
			assert.NoErr(t, cfg.Validate())
		})

		t.Run(`overrides`, func(t *ftt.Test) {
			cfg, err := Load(write(`
datasets:
  logs: staging_logs
tables:
  events: events_v2
environments: [testing]
`))
			assert.NoErr(t, err)
			assert.Loosely(t, cfg.Datasets.Logs, should.Equal("staging_logs"))
			assert.Loosely(t, cfg.Datasets.Events, should.Equal("events"))
			assert.Loosely(t, cfg.Tables.Events, should.Equal("events_v2"))
			assert.Loosely(t, cfg.Tables.FunctionLogs, should.Equal("events_logs_function_native"))
			assert.Loosely(t, cfg.Environments, should.Match([]string{"testing"}))
			assert.Loosely(t, cfg.TimeParts, should.Match([]string{"0-8", "8-16", "16-24"}))
		})

		t.Run(`unknown fields`, func(t *ftt.Test) {
			_, err := Load(write("tablez: {}\n"))
			assert.That(t, err, should.ErrLike("field tablez not found"))
		})

		t.Run(`empty names`, func(t *ftt.Test) {
			_, err := Load(write("tables:\n  events: \"\"\n"))
			assert.That(t, err, should.ErrLike("table names must not be empty"))
		})

		t.Run(`missing file`, func(t *ftt.Test) {
			_, err := Load(filepath.Join(dir, "nope.yaml"))
			assert.That(t, err, should.ErrLike("reading config"))
		})
	})

	ftt.Run(`Assets`, t, func(t *ftt.Test) {
		cfg := Default()
		cfg.Datasets.Logs = "staging_logs"
		assets := cfg.Assets()
		assert.Loosely(t, assets, should.HaveLength(4))
		assert.Loosely(t, assets[0].String(), should.Equal("staging_logs.events_logs_function_native"))
		assert.Loosely(t, assets[3].String(), should.Equal("events.events_function_native"))
		assert.Loosely(t, assets[3].PartitionField, should.Equal("event_timestamp"))
	})
}
