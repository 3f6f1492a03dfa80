package tlsutil

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeTestCert writes a self-signed localhost pair into dir with the given
// serial number and returns the file paths.
func writeTestCert(t *testing.T, dir string, serial int64) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}), 0o644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func serialOf(t *testing.T, cl *CertLoader) int64 {
	t.Helper()
	cert, err := cl.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	require.NotNil(t, cert)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.SerialNumber.Int64()
}

func TestCertLoader_InitialLoad(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir(), 1)

	cl, err := New(certFile, keyFile, testLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(1), serialOf(t, cl))
}

func TestCertLoader_InvalidCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, []byte("invalid"), 0o644))
	require.NoError(t, os.WriteFile(keyFile, []byte("invalid"), 0o644))

	_, err := New(certFile, keyFile, testLogger())
	assert.ErrorContains(t, err, "initial certificate load")
}

func TestCertLoader_Reload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir, 1)

	cl, err := New(certFile, keyFile, testLogger())
	require.NoError(t, err)

	writeTestCert(t, dir, 2)
	require.NoError(t, cl.Reload())
	assert.Equal(t, int64(2), serialOf(t, cl))
}

func TestCertLoader_FailedReloadKeepsCurrent(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir, 1)

	cl, err := New(certFile, keyFile, testLogger())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(certFile, []byte("garbage"), 0o644))
	assert.Error(t, cl.Reload())
	assert.Equal(t, int64(1), serialOf(t, cl))
}

func TestCertLoader_WatchPicksUpNewCert(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCert(t, dir, 1)

	cl, err := New(certFile, keyFile, testLogger())
	require.NoError(t, err)
	cl.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cl.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeTestCert(t, dir, 7)

	assert.Eventually(t, func() bool {
		cert, _ := cl.GetCertificate(nil)
		leaf, err := x509.ParseCertificate(cert.Certificate[0])
		return err == nil && leaf.SerialNumber.Int64() == 7
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestTLSConfig(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir(), 1)
	cl, err := New(certFile, keyFile, testLogger())
	require.NoError(t, err)

	cfg := cl.TLSConfig(tls.VersionTLS13)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	require.NotNil(t, cfg.GetCertificate)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS12), v)

	v, err = ParseVersion("1.3")
	require.NoError(t, err)
	assert.Equal(t, uint16(tls.VersionTLS13), v)

	_, err = ParseVersion("1.0")
	assert.Error(t, err)
}
