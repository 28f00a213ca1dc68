package kafka

import (
	"context"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
)

// Producer publishes pipeline messages to Kafka topics and waits for the
// delivery report so the caller gets a real message position back.
type Producer struct {
	producer *kafka.Producer
}

// NewProducer creates a new Kafka producer
func NewProducer(bootstrapServers string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  bootstrapServers,
		"acks":               "all",
		"enable.idempotence": true,
	})
	if err != nil {
		return nil, err
	}

	// Delivery reports for messages produced without a private channel.
	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					log.Printf("❌ Failed to deliver message: %v", ev.TopicPartition.Error)
				}
			}
		}
	}()

	return &Producer{producer: p}, nil
}

// Publish sends payload keyed by key and blocks until the broker acknowledges it.
func (p *Producer) Publish(ctx context.Context, topic string, key string, payload []byte) (string, error) {
	delivery := make(chan kafka.Event, 1)
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
		Headers:        []kafka.Header{{Key: "message-id", Value: []byte(uuid.New().String())}},
	}, delivery)
	if err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return "", fmt.Errorf("unexpected delivery event %v", e)
		}
		if m.TopicPartition.Error != nil {
			return "", m.TopicPartition.Error
		}
		return fmt.Sprintf("%s[%d]@%v", topic, m.TopicPartition.Partition, m.TopicPartition.Offset), nil
	}
}

// Close flushes outstanding messages and closes the producer
func (p *Producer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
