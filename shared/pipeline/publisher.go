// Package pipeline publishes "this build is ready" messages for the current
// pipeline and for the next one when chaining is configured.
package pipeline

import (
	"context"
	"errors"
	"log"
)

var ErrNoNextTopic = errors.New("no next-stage topic configured")

// Queue is a durable at-least-once topic. Publish returns the broker's message id.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, payload []byte) (string, error)
}

// Outcome describes one publish attempt. Callers log it; nothing is retried.
type Outcome struct {
	Topic     string
	Location  string
	MessageID string
	Err       error
}

func (o Outcome) Log() {
	if o.Err != nil {
		log.Printf("❌ publish error topic=%s location=%s: %v", o.Topic, o.Location, o.Err)
		return
	}
	log.Printf("📤 publish success topic=%s id=%s location=%s", o.Topic, o.MessageID, o.Location)
}

type Publisher struct {
	queue     Queue
	selfTopic string
	nextTopic string
}

// NewPublisher builds a publisher for selfTopic. nextTopic is empty when
// chaining is off; config.Options.ChainNextStage is derived from the same key.
func NewPublisher(queue Queue, selfTopic, nextTopic string) *Publisher {
	return &Publisher{queue: queue, selfTopic: selfTopic, nextTopic: nextTopic}
}

// PublishNewBuild signals runners of this pipeline that location awaits a build.
func (p *Publisher) PublishNewBuild(ctx context.Context, sha, location string) Outcome {
	return p.publish(ctx, p.selfTopic, sha, location)
}

// PublishNextStage hands a successful record's location to the next pipeline.
// It fails without touching the queue when no next topic is configured.
func (p *Publisher) PublishNextStage(ctx context.Context, sha, location string) Outcome {
	if p.nextTopic == "" {
		return Outcome{Location: location, Err: ErrNoNextTopic}
	}
	return p.publish(ctx, p.nextTopic, sha, location)
}

func (p *Publisher) publish(ctx context.Context, topic, sha, location string) Outcome {
	log.Printf("📤 publish topic=%s location=%s", topic, location)
	id, err := p.queue.Publish(ctx, topic, sha, []byte(location))
	return Outcome{Topic: topic, Location: location, MessageID: id, Err: err}
}
