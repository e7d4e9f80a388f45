package chatdb

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// NewTestStore creates an in-memory SQLite store for testing. The store is
// automatically closed when the test completes.
func NewTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err, "failed to create test store")
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
