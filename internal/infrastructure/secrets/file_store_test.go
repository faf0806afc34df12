package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(KeyAuthToken, "tok-123"))

	value, ok, err := store.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-123", value)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyAuthToken, "tok-123"))
	require.NoError(t, store.Set(KeyUserInfo, `{"name":"ada"}`))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)

	value, ok, err := reopened.Get(KeyUserInfo)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"name":"ada"}`, value)
}

func TestFileStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyAuthToken, "tok-123"))
	require.NoError(t, store.Delete(KeyAuthToken))

	_, ok, err := store.Get(KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing key is fine.
	require.NoError(t, store.Delete("never-set"))
}

func TestFileStore_OwnerOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix permissions")
	}
	path := filepath.Join(t.TempDir(), "secrets.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(KeyAuthToken, "tok-123"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}
