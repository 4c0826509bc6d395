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

// Package listing lists event files in Google Storage and writes the
// parse-list manifest of a backfill run.
package listing

import (
	"context"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/retry"
	"go.chromium.org/luci/common/retry/transient"

	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// Lister lists the files under a prefix.
type Lister interface {
	// List returns the full paths of the files under prefix. A prefix with no
	// files yields an empty result, not an error.
	List(ctx context.Context, prefix gspath.Path) ([]gspath.Path, error)
}

// ObjectIterator is implemented by *storage.ObjectIterator.
type ObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// collect drains it, skipping directory placeholders.
func collect(bucket string, it ObjectIterator) ([]gspath.Path, error) {
	var out []gspath.Path
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, tagTransient(err)
		}
		if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		out = append(out, gspath.Join(bucket, attrs.Name))
	}
}

func tagTransient(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests) {
		return transient.Tag.Apply(err)
	}
	return err
}

// listWithRetries lists a prefix, restarting the listing on transient errors.
func listWithRetries(ctx context.Context, prefix gspath.Path, objects func(bucket, prefix string) ObjectIterator) ([]gspath.Path, error) {
	bucket, object := prefix.Split()
	if bucket == "" {
		return nil, errors.Fmt("%q has no bucket", prefix)
	}
	var out []gspath.Path
	err := retry.Retry(ctx, transient.Only(retry.Default), func() (err error) {
		out, err = collect(bucket, objects(bucket, object))
		return err
	}, retry.LogCallback(ctx, "gcs_list"))
	if err != nil {
		return nil, errors.Fmt("listing %s: %w", prefix, err)
	}
	return out, nil
}
