package cryptox_test

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestPasswordHasher(t *testing.T) {
	h := cryptox.PasswordHasher{Pepper: "test-pepper"}

	hash, err := h.Hash("hunter2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	t.Run("correct password", func(t *testing.T) {
		require.NoError(t, h.Verify("hunter2", hash))
	})

	t.Run("wrong password", func(t *testing.T) {
		require.ErrorIs(t, h.Verify("hunter3", hash), cryptox.ErrPasswordMismatch)
	})

	t.Run("different pepper", func(t *testing.T) {
		other := cryptox.PasswordHasher{Pepper: "other"}
		require.ErrorIs(t, other.Verify("hunter2", hash), cryptox.ErrPasswordMismatch)
	})

	t.Run("garbage hash", func(t *testing.T) {
		require.Error(t, h.Verify("hunter2", "$md5$nope"))
	})
}

func TestGenerateToken(t *testing.T) {
	a, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	require.Len(t, a, 43)

	b, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	_, err = cryptox.GenerateToken(0)
	require.Error(t, err)

	require.Equal(t, cryptox.FingerprintToken(a), cryptox.FingerprintToken(a))
	require.NotEqual(t, cryptox.FingerprintToken(a), cryptox.FingerprintToken(b))
}

func TestGenerateEd25519Key(t *testing.T) {
	pemBytes, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)

	ed, ok := key.(ed25519.PrivateKey)
	require.True(t, ok)
	require.Len(t, ed, ed25519.PrivateKeySize)
}

func TestLoadOrGenerateEd25519Key(t *testing.T) {
	path := t.TempDir() + "/keys/signing.pem"

	first, err := cryptox.LoadOrGenerateEd25519Key(path)
	require.NoError(t, err)

	second, err := cryptox.LoadOrGenerateEd25519Key(path)
	require.NoError(t, err)
	require.Equal(t, first, second, "second call must reuse the persisted key")

	ephemeral, err := cryptox.LoadOrGenerateEd25519Key("")
	require.NoError(t, err)
	require.NotEqual(t, first, ephemeral)
}
