//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/destucr/chatroom-backend/internal/config"
	"github.com/destucr/chatroom-backend/internal/message"
)

// ErrStore marks every failure of the underlying storage.
var ErrStore = errors.New("message store unavailable")

// MessageStore is an append-only log of chat messages.
type MessageStore interface {
	// Append records msg after every previously appended message.
	Append(ctx context.Context, msg message.Message) error
	// ListAll returns every message in append order. It never returns nil.
	ListAll(ctx context.Context) ([]message.Message, error)
	Close() error
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// Open connects to the backend named by cfg.Driver and verifies it is reachable.
func Open(ctx context.Context, cfg config.Store) (MessageStore, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case config.DriverPostgres:
		return NewPostgresStore(ctx, cfg.DBConnString())
	case config.DriverRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKey)
	case config.DriverBadger:
		return NewBadgerStore(cfg.BadgerPath)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
