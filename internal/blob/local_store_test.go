package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "key-1.png", []byte("payload")))
	data, err := store.Get(ctx, "key-1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, store.Delete(ctx, "key-1.png"))
	_, err = store.Get(ctx, "key-1.png")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "key-1.png"))
}

func TestLocalStoreSanitizesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	// Path components are stripped; the blob lands inside the store dir.
	require.NoError(t, store.Put(ctx, "../../etc/evil", []byte("x")))
	data, err := store.Get(ctx, "evil")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}
