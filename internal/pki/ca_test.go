package pki

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	b, _ := pem.Decode(raw)
	require.NotNil(t, b)
	c, err := x509.ParseCertificate(b.Bytes)
	require.NoError(t, err)
	return c
}

func TestEnsureStagingCerts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	s := New(dir)

	gen, err := s.EnsureStagingCerts("prov.example.com", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, gen)

	ca := readCert(t, filepath.Join(dir, CACert))
	srv := readCert(t, filepath.Join(dir, ServerCert))
	assert.True(t, ca.IsCA)
	assert.Equal(t, "prov.example.com", srv.Subject.CommonName)
	require.NoError(t, srv.CheckSignatureFrom(ca))

	st, err := os.Stat(filepath.Join(dir, ServerKey))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	before, err := os.ReadFile(filepath.Join(dir, CACert))
	require.NoError(t, err)
	gen, err = s.EnsureStagingCerts("prov.example.com", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, gen)
	after, err := os.ReadFile(filepath.Join(dir, CACert))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
