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

// Package notify dispatches files for ingestion by publishing one Pub/Sub
// message per file.
package notify

import (
	"context"

	"cloud.google.com/go/pubsub"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"go.chromium.org/luci/common/errors"
	gcps "go.chromium.org/luci/common/gcloud/pubsub"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/sync/parallel"

	"github.com/online-services/analytics-pipeline/internal/gspath"
)

// DefaultWorkers is the default number of concurrent publishes.
const DefaultWorkers = 16

// Message is the body of a dispatch message.
//
// It is a superset of a Cloud Storage object notification, so the ingestion
// server handles both the same way.
type Message struct {
	Bucket   string `json:"bucket"`
	Name     string `json:"name"`
	JobName  string `json:"job_name,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// Path returns the full path of the object the message is about.
func (m *Message) Path() gspath.Path {
	return gspath.Join(m.Bucket, m.Name)
}

// Attributes returns the message fields as Pub/Sub attributes.
func (m *Message) Attributes() map[string]string {
	return map[string]string{
		"bucket":    m.Bucket,
		"name":      m.Name,
		"job_name":  m.JobName,
		"file_path": m.FilePath,
	}
}

// Decode parses a message body.
func Decode(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Fmt("decoding notification: %w", err)
	}
	if m.Bucket == "" || m.Name == "" {
		return nil, errors.New("notification has no bucket or name")
	}
	return m, nil
}

// NewMessage returns the dispatch message for path.
func NewMessage(path gspath.Path, jobName string) (*pubsub.Message, error) {
	bucket, name := path.Split()
	if bucket == "" || name == "" {
		return nil, errors.Fmt("%q is not a full object path", path)
	}
	m := &Message{
		Bucket:   bucket,
		Name:     name,
		JobName:  jobName,
		FilePath: path.String(),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Fmt("encoding notification: %w", err)
	}
	return &pubsub.Message{Data: data, Attributes: m.Attributes()}, nil
}

// Notifier publishes dispatch messages.
type Notifier struct {
	// Publisher sends the messages.
	Publisher gcps.Publisher
	// Workers bounds concurrent publishes in NotifyAll. Defaults to
	// DefaultWorkers.
	Workers int
	// Limiter, if set, bounds the publish rate.
	Limiter *rate.Limiter
}

// Notify publishes the dispatch message for one file.
func (n *Notifier) Notify(ctx context.Context, path gspath.Path, jobName string) error {
	msg, err := NewMessage(path, jobName)
	if err != nil {
		return err
	}
	if n.Limiter != nil {
		if err := n.Limiter.Wait(ctx); err != nil {
			return errors.Fmt("publishing %s: %w", path, err)
		}
	}
	ids, err := n.Publisher.Publish(ctx, msg)
	if err != nil {
		return errors.Fmt("publishing %s: %w", path, err)
	}
	if len(ids) > 0 {
		logging.Debugf(ctx, "Published %s as message %s", path, ids[0])
	}
	return nil
}

// NotifyAll publishes a dispatch message per file.
//
// It returns nil if all were published, otherwise an errors.MultiError with
// one slot per path. A failed publish does not stop the others.
func (n *Notifier) NotifyAll(ctx context.Context, paths []gspath.Path, jobName string) error {
	workers := n.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	errs := errors.NewLazyMultiError(len(paths))
	_ = parallel.WorkPool(workers, func(work chan<- func() error) {
		for i, p := range paths {
			work <- func() error {
				if err := n.Notify(ctx, p, jobName); err != nil {
					logging.Warningf(ctx, "Failed to dispatch %s: %s", p, err)
					errs.Assign(i, err)
				}
				return nil
			}
		}
	})
	return errs.Get()
}
