package creds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilBundleIsInsecure(t *testing.T) {
	var c *Credentials
	tc, err := c.TransportCredentials()
	require.NoError(t, err)
	assert.Equal(t, "insecure", tc.Info().SecurityProtocol)
}

func TestMaterialPrecedence(t *testing.T) {
	m := Material{Bytes: []byte("inline"), Path: "/ignored"}
	data, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("inline"), data)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	data, err = Material{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), data)

	_, err = Material{}.Load()
	assert.Error(t, err)
	assert.True(t, Material{}.IsZero())
}

func TestBadCACert(t *testing.T) {
	c := &Credentials{CACert: Material{Bytes: []byte("not a pem")}}
	_, err := c.TransportCredentials()
	assert.Error(t, err)
}

func TestMissingKeyHalf(t *testing.T) {
	c := &Credentials{Cert: Material{Bytes: []byte("cert only")}}
	_, err := c.TransportCredentials()
	assert.Error(t, err, "client cert without key")
}
