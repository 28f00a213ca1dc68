// Package backend opens the store and queue implementations a Config selects.
package backend

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"rawci/shared/config"
	"rawci/shared/kafka"
	"rawci/shared/objectstore"
	"rawci/shared/pipeline"
)

// Backends holds whatever was opened so main can close it on exit.
type Backends struct {
	Store objectstore.Store
	Queue pipeline.Queue
	Minio *objectstore.MinioStore

	redisClient   *redis.Client
	kafkaProducer *kafka.Producer
}

func (b *Backends) redis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if b.redisClient != nil {
		return b.redisClient, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}
	log.Println("✅ Redis connection verified")
	b.redisClient = client
	return client, nil
}

// Open connects the configured store and queue.
func Open(ctx context.Context, cfg config.Config) (*Backends, error) {
	b := &Backends{}
	if err := b.openStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openQueue(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.StoreBackend {
	case "minio":
		client, err := objectstore.NewMinioClient(cfg.Minio)
		if err != nil {
			return fmt.Errorf("minio client: %w", err)
		}
		store, err := objectstore.NewMinioStore(client, cfg.Bucket)
		if err != nil {
			return err
		}
		if err := store.EnsureBucket(ctx, cfg.Minio.Region); err != nil {
			return fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("✅ MinIO store ready: %s/%s", cfg.Minio.Endpoint, cfg.Bucket)
		b.Store, b.Minio = store, store
	case "redis":
		client, err := b.redis(ctx, cfg)
		if err != nil {
			return err
		}
		b.Store = objectstore.NewRedisStore(client, cfg.Bucket)
		log.Printf("✅ Redis store ready: %s", cfg.Bucket)
	case "memory":
		b.Store = objectstore.NewMemoryStore(cfg.Bucket)
		log.Printf("⚠️ Using in-memory store for %s; records are lost on exit", cfg.Bucket)
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return nil
}

func (b *Backends) openQueue(ctx context.Context, cfg config.Config) error {
	switch cfg.QueueBackend {
	case "redis":
		client, err := b.redis(ctx, cfg)
		if err != nil {
			return err
		}
		b.Queue = pipeline.NewRedisQueue(client)
	case "kafka":
		producer, err := kafka.NewProducer(cfg.KafkaBootstrapServers)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		log.Println("✅ Kafka producer created")
		b.kafkaProducer = producer
		b.Queue = producer
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
	return nil
}

func (b *Backends) Close() {
	if b.kafkaProducer != nil {
		b.kafkaProducer.Close()
	}
	if b.redisClient != nil {
		b.redisClient.Close()
	}
}
