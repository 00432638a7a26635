package commands

import (
	"context"
	"path/filepath"
	"testing"

	"visitcounter/internal/session"
	"visitcounter/lib/sqliteutil"

	"github.com/stretchr/testify/require"
)

func TestRenderStoreWithoutDatabase(t *testing.T) {
	store, closeStore, err := renderStore(Config{}, "")
	require.NoError(t, err)
	defer closeStore()
	require.IsType(t, &session.MemoryStore{}, store)

	_, _, err = renderStore(Config{}, "alice")
	require.ErrorIs(t, err, errSessionWithoutDatabase)
}

func TestRenderStoreWithDatabase(t *testing.T) {
	cfg := Config{Sessions: sqliteutil.Config{File: filepath.Join(t.TempDir(), "sessions.db")}}
	ctx := context.Background()

	store, closeStore, err := renderStore(cfg, "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", store.(session.SQLStore).SessionID())
	require.NoError(t, store.Set(ctx, "flag", "1"))
	closeStore()

	// the same session is picked up by the next render
	store, closeStore, err = renderStore(cfg, "alice")
	require.NoError(t, err)
	defer closeStore()
	value, ok, err := store.Get(ctx, "flag")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", value)

	fresh, closeFresh, err := renderStore(cfg, "")
	require.NoError(t, err)
	defer closeFresh()
	require.NotEmpty(t, fresh.(session.SQLStore).SessionID())
	require.NotEqual(t, "alice", fresh.(session.SQLStore).SessionID())
}
