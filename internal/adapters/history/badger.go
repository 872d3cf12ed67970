// Package history persists chat messages in BadgerDB. Keys embed the
// room and a fixed-width send timestamp, so badger's byte-ordered
// iteration yields history in SentAt ascending order for free.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/dgraph-io/badger/v4"

	"github.com/ametov/huddle/internal/domain"
)

const keyPrefix = "msg"

// Store implements core.HistoryStore on a shared badger instance.
// A non-zero limit caps FetchHistory to the most recent messages.
type Store struct {
	db    *badger.DB
	limit int
}

func NewStore(db *badger.DB, limit int) *Store {
	return &Store{db: db, limit: limit}
}

// messageKey orders by room, then send time, then id as tiebreaker.
// The room segment is query-escaped so ids containing the separator
// cannot bleed into another room's prefix scan.
func messageKey(m domain.ChatMessage) []byte {
	return []byte(fmt.Sprintf("%s:%s:%020d:%s",
		keyPrefix,
		url.QueryEscape(string(m.RoomID)),
		m.SentAt.UnixNano(),
		m.ID,
	))
}

func roomPrefix(roomID domain.RoomID) []byte {
	return []byte(fmt.Sprintf("%s:%s:", keyPrefix, url.QueryEscape(string(roomID))))
}

func (s *Store) AppendMessage(_ context.Context, msg domain.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), data)
	})
}

func (s *Store) FetchHistory(_ context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	prefix := roomPrefix(roomID)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m domain.ChatMessage
				if err := json.Unmarshal(val, &m); err != nil {
					return fmt.Errorf("unmarshal message: %w", err)
				}
				out = append(out, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.limit > 0 && len(out) > s.limit {
		out = out[len(out)-s.limit:]
	}
	return out, nil
}
