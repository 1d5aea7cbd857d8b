package overlay

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentity_MissingFile_CreatesWithRestrictedMode(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "keys", "key.txt")

	// Act
	priv, created, err := LoadOrCreateIdentity(path)

	// Assert
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, priv)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadOrCreateIdentity_ExistingFile_ReturnsSameIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.txt")

	first, created, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)
	assert.False(t, created)

	id1, err := PeerIDFromKey(first)
	require.NoError(t, err)
	id2, err := PeerIDFromKey(second)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "重启后节点身份应保持不变")
}

func TestLoadOrCreateIdentity_CorruptFile_ReturnsErrorAndKeepsFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "key.txt")
	require.NoError(t, os.WriteFile(path, []byte("not-a-key"), 0o600))

	// Act
	_, _, err := LoadOrCreateIdentity(path)

	// Assert
	require.ErrorIs(t, err, ErrInvalidKeyFile)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "not-a-key", string(data), "损坏的密钥文件不应被覆盖")
}

func TestLoadOrCreateIdentity_EmptyPath_ReturnsError(t *testing.T) {
	_, _, err := LoadOrCreateIdentity("  ")
	assert.Error(t, err)
}

func TestADNLKey_Ed25519Identity_SignsWithSameKey(t *testing.T) {
	// Arrange
	priv, _, err := LoadOrCreateIdentity(filepath.Join(t.TempDir(), "key.txt"))
	require.NoError(t, err)

	// Act
	key, err := ADNLKey(priv)

	// Assert
	require.NoError(t, err)
	msg := []byte("external")
	libp2pPub, err := priv.GetPublic().Raw()
	require.NoError(t, err)
	assert.Equal(t, []byte(key.Public().(ed25519.PublicKey)), libp2pPub)
	assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), msg, ed25519.Sign(key, msg)))

	id, err := ADNLID(key)
	require.NoError(t, err)
	assert.Len(t, id, 32)
}

func TestADNLKey_NonEd25519Key_ReturnsError(t *testing.T) {
	priv, _, err := crypto.GenerateSecp256k1Key(rand.Reader)
	require.NoError(t, err)

	_, err = ADNLKey(priv)

	require.ErrorIs(t, err, ErrInvalidKeyFile)
}
