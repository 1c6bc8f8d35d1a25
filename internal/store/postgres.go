package store

import (
	"context"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, storeErr("connect", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storeErr("ping", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		"user" TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return storeErr("init schema", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msg message.Message) error {
	query := `INSERT INTO messages ("user", text) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, query, msg.User, msg.Text); err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]message.Message, error) {
	query := `SELECT "user", text FROM messages ORDER BY id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer rows.Close()

	messages := make([]message.Message, 0)
	for rows.Next() {
		var m message.Message
		if err := rows.Scan(&m.User, &m.Text); err != nil {
			return nil, storeErr("scan", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}

	return messages, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
