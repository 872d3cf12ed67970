package profile

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/ametov/huddle/internal/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Upsert_Then_Resolve(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t))

	want := domain.Profile{DisplayName: "Alice", PhotoURL: "https://cdn.example/a.png"}
	req.NoError(store.Upsert("u-alice", want))

	got, err := store.ResolveProfile(context.Background(), "u-alice")
	req.NoError(err)
	req.Equal(want, got)
}

func Test_Resolve_Unknown_User_Returns_Defaults(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t))

	got, err := store.ResolveProfile(context.Background(), "u-stranger")
	req.NoError(err)
	req.Equal(domain.DefaultProfile(), got)
}

func Test_Upsert_Replaces_Prior_Profile(t *testing.T) {
	req := require.New(t)
	store := NewStore(openTestDB(t))

	req.NoError(store.Upsert("u-alice", domain.Profile{DisplayName: "Alice"}))
	req.NoError(store.Upsert("u-alice", domain.Profile{DisplayName: "Alice B."}))

	got, err := store.ResolveProfile(context.Background(), "u-alice")
	req.NoError(err)
	req.Equal("Alice B.", got.DisplayName)
}
