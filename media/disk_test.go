package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), "/media/")
	require.NoError(t, err)

	url, err := store.Put(ctx, "d1/owner-monster1.png", []byte("img-a"))
	require.NoError(t, err)
	assert.Equal(t, "/media/d1/owner-monster1.png", url)

	_, err = store.Put(ctx, "d1/guest-trap1.png", []byte("img-b"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "d2/owner-monster1.png", []byte("img-c"))
	require.NoError(t, err)

	keys, err := store.ListByPrefix(ctx, "d1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1/owner-monster1.png", "d1/guest-trap1.png"}, keys)

	require.NoError(t, store.DeleteMany(ctx, keys))

	keys, err = store.ListByPrefix(ctx, "d1/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = store.ListByPrefix(ctx, "d2/")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestDiskStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewDiskStore(root, "/media")
	require.NoError(t, err)

	_, err = store.Put(ctx, "d1/owner-monster1.png", []byte("old"))
	require.NoError(t, err)
	_, err = store.Put(ctx, "d1/owner-monster1.png", []byte("new"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "d1", "owner-monster1.png"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)

	_, err = store.Put(ctx, "../escape.png", []byte("x"))
	assert.Error(t, err)
	_, err = store.Put(ctx, "/abs.png", []byte("x"))
	assert.Error(t, err)
	assert.Error(t, store.DeleteMany(ctx, []string{"../escape.png"}))
}

func TestDiskStoreDeleteMissingKey(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)

	assert.NoError(t, store.DeleteMany(ctx, []string{"d1/never-stored.png"}))
}
