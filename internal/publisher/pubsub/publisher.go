// Package pubsub implements a Google Cloud Pub/Sub chunk publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Publisher sends chunks to a Pub/Sub topic. Messages carry the chunk JSON
// plus routing attributes; the source URL is used as the ordering key so a
// document's chunks arrive at the indexer in order.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New creates a Pub/Sub client, verifies the topic exists, and returns a
// Publisher that owns the client. It authenticates using Application Default
// Credentials.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	topic.EnableMessageOrdering = true
	return &Publisher{client: client, topic: topic}, nil
}

// NewWithTopic wraps an existing topic handle. The caller retains ownership
// of the underlying client.
func NewWithTopic(topic *pubsub.Topic) *Publisher {
	topic.EnableMessageOrdering = true
	return &Publisher{topic: topic}
}

// Publish marshals the chunk to JSON and publishes it, blocking until the
// server acknowledges the message.
func (p *Publisher) Publish(ctx context.Context, chunk pipeline.ContentChunk) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", chunk.ID, err)
	}

	msg := &pubsub.Message{
		Data:        data,
		OrderingKey: chunk.Metadata.SourceURL,
		Attributes: map[string]string{
			"chunk_id":     chunk.ID,
			"source_url":   chunk.Metadata.SourceURL,
			"strategy":     string(chunk.Strategy),
			"chunk_index":  strconv.Itoa(chunk.ChunkIndex),
			"total_chunks": strconv.Itoa(chunk.TotalChunks),
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(msg.OrderingKey)
		return fmt.Errorf("publish chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Close stops the topic's publish goroutines and closes the client when this
// Publisher owns it.
func (p *Publisher) Close() error {
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
