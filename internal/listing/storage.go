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

package listing

import (
	"context"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"

	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// StorageClient is a wrapper around the Cloud Storage client that lists,
// reads and writes objects.
type StorageClient struct {
	gsClient *storage.Client
}

// NewStorageClient creates a storage client that authenticates with tr.
func NewStorageClient(ctx context.Context, tr http.RoundTripper) (*StorageClient, error) {
	client, err := storage.NewClient(ctx, option.WithHTTPClient(&http.Client{Transport: tr}))
	if err != nil {
		return nil, errors.Fmt("new storage client: %w", err)
	}
	return &StorageClient{gsClient: client}, nil
}

// List implements Lister.
func (c *StorageClient) List(ctx context.Context, prefix gspath.Path) ([]gspath.Path, error) {
	return listWithRetries(ctx, prefix, func(bucket, prefix string) ObjectIterator {
		q := &storage.Query{Prefix: prefix}
		// "Name" is a known attribute, so this never fails.
		_ = q.SetAttrSelection([]string{"Name"})
		return c.gsClient.Bucket(bucket).Objects(ctx, q)
	})
}

// Read returns the content of an object, transparently decompressed if the
// object was uploaded with gzip content encoding.
//
// A missing object is reported as storage.ErrObjectNotExist.
func (c *StorageClient) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	r, err := c.gsClient.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, tagTransient(errors.Fmt("opening gs://%s/%s: %w", bucket, name, err))
	}
	defer r.Close()
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, tagTransient(errors.Fmt("reading gs://%s/%s: %w", bucket, name, err))
	}
	return blob, nil
}

// Write creates or replaces an object.
func (c *StorageClient) Write(ctx context.Context, bucket, name, contentType string, data []byte) error {
	w := c.gsClient.Bucket(bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return tagTransient(errors.Fmt("writing gs://%s/%s: %w", bucket, name, err))
	}
	if err := w.Close(); err != nil {
		return tagTransient(errors.Fmt("finalizing gs://%s/%s: %w", bucket, name, err))
	}
	return nil
}

// Close releases resources associated with the client.
func (c *StorageClient) Close() error {
	return c.gsClient.Close()
}
