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

package notify

import (
	"context"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"go.chromium.org/luci/common/errors"
	gcps "go.chromium.org/luci/common/gcloud/pubsub"
	"go.chromium.org/luci/common/retry/transient"
)

// TopicPublisher publishes to a single topic through the Pub/Sub client
// library, which batches messages in the background.
type TopicPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

var _ gcps.Publisher = (*TopicPublisher)(nil)

// NewTopicPublisher creates a publisher for topic.
func NewTopicPublisher(ctx context.Context, topic gcps.Topic, opts ...option.ClientOption) (*TopicPublisher, error) {
	project, name, err := topic.SplitErr()
	if err != nil {
		return nil, errors.Fmt("bad topic %q: %w", topic, err)
	}
	client, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Fmt("failed to create a pubsub client for %s: %w", project, err)
	}
	return &TopicPublisher{
		client: client,
		topic:  client.Topic(name),
	}, nil
}

// Publish implements gcps.Publisher.
//
// It blocks until every message is acknowledged by the server.
func (p *TopicPublisher) Publish(ctx context.Context, msgs ...*pubsub.Message) ([]string, error) {
	results := make([]*pubsub.PublishResult, len(msgs))
	for i, m := range msgs {
		results[i] = p.topic.Publish(ctx, m)
	}
	ids := make([]string, len(msgs))
	for i, r := range results {
		id, err := r.Get(ctx)
		if err != nil {
			return nil, transient.Tag.Apply(errors.Fmt("failed to publish the msg to %s: %w", p.topic, err))
		}
		ids[i] = id
	}
	return ids, nil
}

// Close flushes pending messages and releases the client.
func (p *TopicPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
