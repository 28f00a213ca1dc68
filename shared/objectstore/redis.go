package objectstore

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps records as plain string values under <bucket>:<key>.
// Redis has no object versions, so the generation passed to Get is ignored.
type RedisStore struct {
	client *redis.Client
	bucket string
}

func NewRedisStore(client *redis.Client, bucket string) *RedisStore {
	return &RedisStore{client: client, bucket: bucket}
}

func (s *RedisStore) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", s.bucket, key)
}

func (s *RedisStore) Put(ctx context.Context, key string, body []byte, _ string) error {
	return s.client.Set(ctx, s.redisKey(key), body, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, key, _ string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.redisKey(key)).Err()
}

func (s *RedisStore) URL(key string) string {
	return "redis://" + s.bucket + "/" + key
}

func (s *RedisStore) Bucket() string {
	return s.bucket
}
