// Package tlsutil serves the dev server's certificate and reloads it when
// the files change, so a regenerated local certificate (mkcert, a renewed
// self-signed pair) is picked up without restarting the proxy.
package tlsutil

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ParseVersion maps a config min_version ("1.2", "1.3") to a tls constant.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", v)
	}
}

// CertLoader holds the current certificate. GetCertificate is safe to call
// from concurrent handshakes while Watch swaps the certificate.
type CertLoader struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	certFile string
	keyFile  string
	logger   *slog.Logger
	debounce time.Duration
}

// New loads the initial certificate. It fails if the pair cannot be loaded.
func New(certFile, keyFile string, logger *slog.Logger) (*CertLoader, error) {
	cl := &CertLoader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
		debounce: 300 * time.Millisecond,
	}
	if err := cl.loadCert(); err != nil {
		return nil, fmt.Errorf("initial certificate load: %w", err)
	}
	return cl, nil
}

// TLSConfig returns a server config that asks the loader for the
// certificate on every handshake.
func (cl *CertLoader) TLSConfig(minVersion uint16) *tls.Config {
	return &tls.Config{
		MinVersion:     minVersion,
		GetCertificate: cl.GetCertificate,
	}
}

// GetCertificate is the tls.Config.GetCertificate callback.
func (cl *CertLoader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.cert, nil
}

// Reload reloads the pair from disk. A failed reload keeps the current
// certificate.
func (cl *CertLoader) Reload() error {
	if err := cl.loadCert(); err != nil {
		cl.logger.Error("TLS certificate reload failed, keeping current",
			"error", err, "cert_file", cl.certFile, "key_file", cl.keyFile)
		return err
	}
	cl.logger.Info("TLS certificate reloaded", "cert_file", cl.certFile, "key_file", cl.keyFile)
	return nil
}

func (cl *CertLoader) loadCert() error {
	cert, err := tls.LoadX509KeyPair(cl.certFile, cl.keyFile)
	if err != nil {
		return err
	}
	cl.mu.Lock()
	cl.cert = &cert
	cl.mu.Unlock()
	return nil
}

// Watch reloads the certificate whenever the cert or key file changes,
// until ctx is cancelled. The parent directories are watched so files
// replaced by rename are noticed too.
func (cl *CertLoader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()

	files := map[string]bool{
		filepath.Clean(cl.certFile): true,
		filepath.Clean(cl.keyFile):  true,
	}
	dirs := map[string]bool{}
	for f := range files {
		dirs[filepath.Dir(f)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watching %s: %w", d, err)
		}
	}
	cl.logger.Info("watching TLS certificate for changes", "cert_file", cl.certFile, "key_file", cl.keyFile)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(event.Name)] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// cert and key are usually rewritten together; reload once.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(cl.debounce, func() {
				cl.Reload() //nolint:errcheck
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			cl.logger.Error("TLS cert file watcher error", "error", err)
		}
	}
}
