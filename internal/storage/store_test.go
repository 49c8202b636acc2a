package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})
	return store
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "pending:user-1", []byte(`[{"correlationId":"c1"}]`)))

	value, ok, err := store.Get(ctx, "pending:user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `[{"correlationId":"c1"}]`, string(value))
}

func TestStore_GetMissingKey(t *testing.T) {
	store := newTestStore(t)

	value, ok, err := store.Get(context.Background(), "pending:nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestStore_SetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("first")))
	require.NoError(t, store.Set(ctx, "k", []byte("second")))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", string(value))
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestStore_InvalidPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestStore_EncryptionRoundTrip(t *testing.T) {
	t.Setenv("CHATSYNC_ENABLE_ENCRYPTION", "true")
	t.Setenv("CHATSYNC_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "secret", []byte("hello")))

	value, ok, err := store.Get(ctx, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", string(value))
}

func TestStore_EncryptionRequiresSecret(t *testing.T) {
	t.Setenv("CHATSYNC_ENABLE_ENCRYPTION", "true")
	os.Unsetenv("CHATSYNC_ENCRYPTION_SECRET")

	_, err := New(filepath.Join(t.TempDir(), "slots.db"))
	assert.Error(t, err)
}

func TestEncryptor_ShortSecretRejected(t *testing.T) {
	t.Setenv("CHATSYNC_ENABLE_ENCRYPTION", "true")
	t.Setenv("CHATSYNC_ENCRYPTION_SECRET", "too-short")

	_, err := newEncryptor()
	assert.Error(t, err)
}
