package keystore

import (
	"path/filepath"
	"testing"

	"buddywalk/internal/crypto/e2ee"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	ks, err := Open(path, "http://localhost:8080")
	require.NoError(t, err)
	defer ks.Close()

	empty, err := ks.Load()
	require.NoError(t, err)
	assert.Nil(t, empty)

	priv, err := e2ee.GenerateIdentityKeyPair()
	require.NoError(t, err)
	require.NoError(t, ks.Store(priv))

	loaded, err := ks.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Equal(priv))

	require.NoError(t, ks.SetSession("token-1"))
	token, err := ks.Session()
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	require.NoError(t, ks.Clear())
	cleared, err := ks.Load()
	require.NoError(t, err)
	assert.Nil(t, cleared)
	token, err = ks.Session()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	priv, err := e2ee.GenerateIdentityKeyPair()
	require.NoError(t, err)

	ks, err := Open(path, "https://buddywalk.example")
	require.NoError(t, err)
	require.NoError(t, ks.Store(priv))
	require.NoError(t, ks.Close())

	ks, err = Open(path, "https://buddywalk.example")
	require.NoError(t, err)
	defer ks.Close()

	loaded, err := ks.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Equal(priv))
}

func TestOriginsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	priv, err := e2ee.GenerateIdentityKeyPair()
	require.NoError(t, err)

	ks, err := Open(path, "https://a.example")
	require.NoError(t, err)
	require.NoError(t, ks.Store(priv))
	require.NoError(t, ks.Close())

	other, err := Open(path, "https://b.example")
	require.NoError(t, err)
	defer other.Close()

	loaded, err := other.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestOpenRequiresOrigin(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "keys.db"), "")
	assert.Error(t, err)
}
