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

// Package config holds the warehouse layout and the enumerated partition
// values shared by the backfill job and the ingestion server.
//
// Both binaries work with the built-in defaults. A YAML file can override
// any of them:
//
//	datasets:
//	  logs: logs
//	  events: events
//	tables:
//	  functionLogs: events_logs_function_native
//	environments: [testing, live]
package config

import (
	"bytes"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"go.chromium.org/luci/common/errors"

	"github.com/online-services/analytics-pipeline/internal/bqutil"
	"github.com/online-services/analytics-pipeline/internal/partition"
)

// Config is the pipeline configuration.
type Config struct {
	Datasets     Datasets `yaml:"datasets"`
	Tables       Tables   `yaml:"tables"`
	Environments []string `yaml:"environments"`
	TimeParts    []string `yaml:"timeParts"`
}

// Datasets names the BigQuery datasets.
type Datasets struct {
	Logs   string `yaml:"logs"`
	Events string `yaml:"events"`
}

// Tables names the BigQuery tables.
type Tables struct {
	// FunctionLogs receives parse_initiated markers from the ingestion server.
	FunctionLogs string `yaml:"functionLogs"`
	// FunctionDebug receives payloads that could not be ingested as events.
	FunctionDebug string `yaml:"functionDebug"`
	// BackfillLogs receives parse_initiated markers from backfill runs.
	BackfillLogs string `yaml:"backfillLogs"`
	// Events receives ingested events.
	Events string `yaml:"events"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Datasets: Datasets{
			Logs:   "logs",
			Events: "events",
		},
		Tables: Tables{
			FunctionLogs:  "events_logs_function_native",
			FunctionDebug: "events_debug_function_native",
			BackfillLogs:  "events_logs_dataflow_backfill",
			Events:        "events_function_native",
		},
		Environments: slices.Clone(partition.DefaultEnvironments),
		TimeParts:    slices.Clone(partition.DefaultTimeParts),
	}
}

// Load reads the config file at path on top of the defaults.
//
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Fmt("reading config: %w", err)
	}
	if err := cfg.parse(blob); err != nil {
		return nil, errors.Fmt("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) parse(blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks that every name is set.
func (c *Config) Validate() error {
	switch {
	case c.Datasets.Logs == "" || c.Datasets.Events == "":
		return errors.New("dataset names must not be empty")
	case c.Tables.FunctionLogs == "" || c.Tables.FunctionDebug == "" || c.Tables.BackfillLogs == "" || c.Tables.Events == "":
		return errors.New("table names must not be empty")
	case len(c.Environments) == 0:
		return errors.New("at least one environment is required")
	case len(c.TimeParts) == 0:
		return errors.New("at least one time part is required")
	}
	return nil
}

// Assets lists every table the pipeline reads or writes.
func (c *Config) Assets() []bqutil.Asset {
	return []bqutil.Asset{
		{Dataset: c.Datasets.Logs, Table: c.Tables.FunctionLogs, Schema: bqutil.LogSchema, PartitionField: "event_ds"},
		{Dataset: c.Datasets.Logs, Table: c.Tables.FunctionDebug, Schema: bqutil.LogSchema, PartitionField: "event_ds"},
		{Dataset: c.Datasets.Logs, Table: c.Tables.BackfillLogs, Schema: bqutil.LogSchema, PartitionField: "event_ds"},
		{Dataset: c.Datasets.Events, Table: c.Tables.Events, Schema: bqutil.EventSchema, PartitionField: "event_timestamp"},
	}
}
