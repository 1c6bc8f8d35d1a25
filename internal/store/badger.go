package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/destucr/chatroom-backend/internal/message"
	"github.com/dgraph-io/badger/v4"
)

const (
	badgerPrefix   = "msg:"
	badgerSeqKey   = "seq:messages"
	badgerSeqLease = 100
)

// BadgerStore keeps messages in an embedded badger database.
// Keys are "msg:{sequence}" with a 20-digit zero padded sequence so that
// lexicographical key order is append order.
type BadgerStore struct {
	// mu keeps sequence allocation and commit in the same order.
	mu  sync.Mutex
	db  *badger.DB
	seq *badger.Sequence
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, storeErr("open", err)
	}
	seq, err := db.GetSequence([]byte(badgerSeqKey), badgerSeqLease)
	if err != nil {
		_ = db.Close()
		return nil, storeErr("sequence", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func (s *BadgerStore) Append(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.seq.Next()
	if err != nil {
		return storeErr("sequence", err)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return storeErr("encode", err)
	}

	key := fmt.Sprintf("%s%020d", badgerPrefix, n)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), b)
	})
	if err != nil {
		return storeErr("append", err)
	}
	return nil
}

func (s *BadgerStore) ListAll(ctx context.Context) ([]message.Message, error) {
	messages := make([]message.Message, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(badgerPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m message.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &m)
			})
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("list", err)
	}
	return messages, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return storeErr("release sequence", err)
	}
	return s.db.Close()
}
