// Package profile resolves user display metadata from BadgerDB.
// Resolution is fail-soft: a user without a stored profile gets the
// default one, and only real storage failures surface as errors (the
// lifecycle degrades those to defaults too).
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ametov/huddle/internal/domain"
)

const keyPrefix = "profile:"

type Store struct {
	db *badger.DB
}

func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

func profileKey(userID domain.UserID) []byte {
	return []byte(keyPrefix + string(userID))
}

// Upsert stores or replaces the profile for a user.
func (s *Store) Upsert(userID domain.UserID, p domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(userID), data)
	})
}

func (s *Store) ResolveProfile(_ context.Context, userID domain.UserID) (domain.Profile, error) {
	var p domain.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profileKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.DefaultProfile(), nil
	}
	if err != nil {
		return domain.DefaultProfile(), err
	}
	if p.DisplayName == "" {
		p.DisplayName = domain.DefaultDisplayName
	}
	return p, nil
}
