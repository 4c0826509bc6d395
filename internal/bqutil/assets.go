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

package bqutil

import (
	"context"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"go.chromium.org/luci/common/bq"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/retry/transient"
)

// ErrAssetMissing is returned by EnsureAssets when a dataset or table does
// not exist and provisioning is disabled.
var ErrAssetMissing = errors.New("warehouse asset is missing")

// Asset is a day-partitioned table the pipeline reads or writes.
type Asset struct {
	Dataset        string
	Table          string
	Schema         bigquery.Schema
	PartitionField string
}

// String returns "dataset.table".
func (a Asset) String() string {
	return a.Dataset + "." + a.Table
}

// Metadata is the table definition used when creating the table.
func (a Asset) Metadata() *bigquery.TableMetadata {
	md := &bigquery.TableMetadata{Schema: a.Schema}
	if a.PartitionField != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: a.PartitionField,
		}
	}
	return md
}

// DatasetHandle is implemented by *bigquery.Dataset.
type DatasetHandle interface {
	Metadata(ctx context.Context) (*bigquery.DatasetMetadata, error)
	Create(ctx context.Context, md *bigquery.DatasetMetadata) error
}

// Catalog resolves dataset and table handles.
type Catalog interface {
	Dataset(id string) DatasetHandle
	Table(dataset, table string) bq.Table
}

// NewCatalog returns a Catalog backed by a BigQuery client.
func NewCatalog(c *bigquery.Client) Catalog {
	return clientCatalog{c}
}

type clientCatalog struct {
	c *bigquery.Client
}

func (cc clientCatalog) Dataset(id string) DatasetHandle {
	return cc.c.Dataset(id)
}

func (cc clientCatalog) Table(dataset, table string) bq.Table {
	return cc.c.Dataset(dataset).Table(table)
}

// IsNotFound is true if err is a 404 from a Google API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// EnsureAssets checks that every asset exists.
//
// Each dataset and table is looked up explicitly. A lookup that fails with
// anything other than "not found" is returned as is. When something is not
// found, EnsureAssets returns ErrAssetMissing unless provision is true, in
// which case the dataset is created in location and the table is created
// with its schema and day partitioning. Existing tables are given any
// columns their schema lacks when provisioning.
func EnsureAssets(ctx context.Context, cat Catalog, assets []Asset, location string, provision bool) error {
	checked := map[string]bool{}
	for _, a := range assets {
		if !checked[a.Dataset] {
			if err := ensureDataset(ctx, cat.Dataset(a.Dataset), a.Dataset, location, provision); err != nil {
				return err
			}
			checked[a.Dataset] = true
		}

		t := cat.Table(a.Dataset, a.Table)
		_, err := t.Metadata(ctx)
		switch {
		case IsNotFound(err) && !provision:
			return errors.Fmt("table %s: %w", a, ErrAssetMissing)
		case err != nil && !IsNotFound(err):
			return errors.Fmt("looking up table %s: %w", a, err)
		case err == nil && !provision:
			continue
		}
		if err := bq.EnsureTable(ctx, t, a.Metadata()); err != nil {
			return errors.Fmt("provisioning table %s: %w", a, err)
		}
	}
	return nil
}

func ensureDataset(ctx context.Context, ds DatasetHandle, id, location string, provision bool) error {
	_, err := ds.Metadata(ctx)
	switch {
	case err == nil:
		return nil
	case !IsNotFound(err):
		return errors.Fmt("looking up dataset %s: %w", id, err)
	case !provision:
		return errors.Fmt("dataset %s: %w", id, ErrAssetMissing)
	}

	err = ds.Create(ctx, &bigquery.DatasetMetadata{Location: location})
	var apiErr *googleapi.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict:
		// Created concurrently.
		return nil
	case err != nil:
		if IsTransient(err) {
			err = transient.Tag.Apply(err)
		}
		return errors.Fmt("creating dataset %s: %w", id, err)
	}
	logging.Infof(ctx, "Created BigQuery dataset %s in %q", id, location)
	return nil
}
