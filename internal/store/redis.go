package store

import (
	"context"
	"encoding/json"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/redis/go-redis/v9"
)

// RedisStore appends encoded messages to a single list.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(ctx context.Context, addr, password, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storeErr("ping", err)
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Append(ctx context.Context, msg message.Message) error {
	b, err := message.Encode(msg)
	if err != nil {
		return storeErr("encode", err)
	}
	if err := s.client.RPush(ctx, s.key, b).Err(); err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]message.Message, error) {
	values, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, storeErr("list", err)
	}

	messages := make([]message.Message, 0, len(values))
	for _, v := range values {
		var m message.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, storeErr("decode", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
