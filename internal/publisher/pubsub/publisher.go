// Package pubsub publishes analysis completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
)

// EventType is attached to every message so subscribers can filter.
const EventType = "site_analysis.completed"

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

// topicAdapter narrows *pubsub.Topic to the topic interface.
type topicAdapter struct {
	t *pubsub.Topic
}

func (a topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return a.t.Publish(ctx, msg)
}

func (a topicAdapter) Stop() { a.t.Stop() }

// Publisher implements crawler.Publisher on a Pub/Sub client. Topic handles
// are created on first use and reused.
type Publisher struct {
	openTopic   func(name string) topic
	closeClient func() error

	mu     sync.Mutex
	topics map[string]topic
}

// New connects to Pub/Sub in projectID.
func New(ctx context.Context, projectID string) (*Publisher, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return newPublisher(
		func(name string) topic { return topicAdapter{t: client.Topic(name)} },
		client.Close,
	), nil
}

func newPublisher(openTopic func(string) topic, closeClient func() error) *Publisher {
	return &Publisher{
		openTopic:   openTopic,
		closeClient: closeClient,
		topics:      make(map[string]topic),
	}
}

// Publish marshals the payload to JSON and publishes it to topicName,
// blocking until the server acknowledges it.
func (p *Publisher) Publish(ctx context.Context, topicName string, payload any) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"event_type":   EventType,
			"content_type": "application/json",
		},
	}
	id, err := p.topic(topicName).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func (p *Publisher) topic(name string) topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[name]
	if !ok {
		t = p.openTopic(name)
		p.topics[name] = t
	}
	return t
}

// Close flushes pending publishes and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	for name, t := range p.topics {
		t.Stop()
		delete(p.topics, name)
	}
	p.mu.Unlock()
	if p.closeClient == nil {
		return nil
	}
	if err := p.closeClient(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
