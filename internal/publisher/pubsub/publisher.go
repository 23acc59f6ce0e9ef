// Package pubsub publishes league crawl completions to a Google Cloud Pub/Sub
// topic. Downstream consumers react to the messages by ingesting the freshly
// written league files.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/fixturelab/matchday-crawler/internal/crawl"
)

// Config locates the completion topic.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Validate reports the first configuration problem.
func (c Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New("publisher.project_id is required")
	}
	if c.TopicID == "" {
		return errors.New("publisher.topic_id is required")
	}
	return nil
}

// Publisher sends one JSON message per completed league unit.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

var _ crawl.Publisher = (*Publisher)(nil)

// New connects with application default credentials and verifies the topic
// exists before accepting any work. Client options are forwarded, which lets
// tests point at an emulator.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid publisher config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("publisher")

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		closeClient(client, logger)
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		closeClient(client, logger)
		return nil, fmt.Errorf("pubsub topic %q not found in project %q", cfg.TopicID, cfg.ProjectID)
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends the completion and waits for the broker ack, so delivery
// failures surface to the caller instead of dying in a background flush.
func (p *Publisher) Publish(ctx context.Context, c crawl.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":  c.RunID,
			"country": c.Country,
			"league":  c.League,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	p.logger.Debug("completion published",
		zap.String("message_id", id),
		zap.String("country", c.Country),
		zap.String("league", c.League),
		zap.Int("new_matches", c.NewMatches),
	)
	return nil
}

// Close flushes buffered messages and releases the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func closeClient(client *pubsub.Client, logger *zap.Logger) {
	if err := client.Close(); err != nil {
		logger.Warn("pubsub client close failed", zap.Error(err))
	}
}
