package kafka

import (
	"context"
	"log"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	consumer *kafka.Consumer
}

func NewConsumer(bootstrapServers, groupID string) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": "true",
	})
	if err != nil {
		return nil, err
	}

	return &Consumer{consumer: c}, nil
}

func (c *Consumer) Subscribe(topics []string) error {
	maxRetries := 15
	retryDelay := time.Second * 2

	var err error
	for i := 0; i < maxRetries; i++ {
		err = c.consumer.SubscribeTopics(topics, nil)
		if err == nil {
			log.Printf("✅ Subscribed to topics: %v", topics)
			return nil
		}

		if i < maxRetries-1 {
			log.Printf("⚠️ Failed to subscribe to topics: %v, retrying in %v... (attempt %d/%d)",
				err, retryDelay, i+1, maxRetries)
			time.Sleep(retryDelay)
			retryDelay = time.Duration(float64(retryDelay) * 1.5)
		}
	}

	return err
}

// ConsumeMessages polls until ctx is cancelled or every broker is down. Handler
// errors are logged; the offset still advances.
func (c *Consumer) ConsumeMessages(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Consumer stopping: %v", ctx.Err())
			return
		default:
		}

		ev := c.consumer.Poll(100)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := handler(ctx, e.Key, e.Value); err != nil {
				log.Printf("❌ Error processing message: %v", err)
			}
		case kafka.Error:
			isTopicError := e.Code() == kafka.ErrUnknownTopicOrPart ||
				e.Code() == kafka.ErrBadMsg ||
				e.Code() == kafka.ErrTimedOut
			if isTopicError {
				log.Printf("⚠️ Kafka error: %v", e)
			} else if e.Code() == kafka.ErrAllBrokersDown {
				log.Printf("❌ Fatal Kafka error: %v", e)
				return
			}
		}
	}
}

func (c *Consumer) Close() {
	c.consumer.Close()
}
