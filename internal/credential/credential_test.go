package credential

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yz4230/shipyard/internal/entity"
	"github.com/yz4230/shipyard/internal/remote"
)

func TestSealOpen(t *testing.T) {
	p, err := NewProvider("s3cret")
	require.NoError(t, err)

	sealed, err := p.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:"))
	assert.NotContains(t, sealed, "hunter2")

	plain, err := p.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	other, err := NewProvider("different")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)
}

func TestOpen_PlainValuesPassThrough(t *testing.T) {
	p, err := NewProvider("")
	require.NoError(t, err)

	v, err := p.Open("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	sealed, err := p.Seal("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", sealed)

	_, err = p.Open("enc:AAAA")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestResolve(t *testing.T) {
	p, err := NewProvider("s3cret")
	require.NoError(t, err)
	ctx := context.Background()

	sealed, err := p.Seal("pw")
	require.NoError(t, err)
	auth, err := p.Resolve(ctx, &entity.Server{Password: sealed})
	require.NoError(t, err)
	assert.Equal(t, remote.Auth{Password: "pw"}, auth)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, []byte("KEY"), 0o600))
	auth, err = p.Resolve(ctx, &entity.Server{Password: sealed, PrivateKeyPath: keyPath})
	require.NoError(t, err)
	assert.Equal(t, []byte("KEY"), auth.PrivateKey)
	assert.Empty(t, auth.Password)
	require.NoError(t, auth.Validate())

	_, err = p.Resolve(ctx, &entity.Server{})
	assert.ErrorIs(t, err, remote.ErrNoCredential)

	_, err = p.Resolve(ctx, &entity.Server{PrivateKeyPath: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
