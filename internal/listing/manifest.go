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
	"path"
	"strings"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// ObjectWriter is implemented by *StorageClient.
type ObjectWriter interface {
	Write(ctx context.Context, bucket, name, contentType string, data []byte) error
}

// ManifestObject is where the parse list of a job is written.
func ManifestObject(jobName string) string {
	return path.Join("data_type=dataflow", "batch", "output", jobName, "parselist")
}

// WriteManifest writes the files a backfill run is about to dispatch, one per
// line, to the job's parse-list object in bucket.
func WriteManifest(ctx context.Context, w ObjectWriter, bucket, jobName string, files []string) (gspath.Path, error) {
	name := ManifestObject(jobName)
	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	if err := w.Write(ctx, bucket, name, "text/plain", []byte(sb.String())); err != nil {
		return "", errors.Fmt("writing parse list: %w", err)
	}
	p := gspath.Join(bucket, name)
	logging.Infof(ctx, "Wrote parse list of %d files to %s", len(files), p)
	return p, nil
}
