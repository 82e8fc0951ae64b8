package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultCertCheckInterval = time.Minute

// certReloader serves a TLS key pair from disk and picks up replacements
// without a restart. The files are stat'ed at most once per check interval.
type certReloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	cert      *tls.Certificate
	modTime   time.Time
	lastCheck time.Time
}

func newCertReloader(certFile, keyFile string, logger *slog.Logger) (*certReloader, error) {
	r := &certReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger,
		interval: defaultCertCheckInterval,
		now:      time.Now,
	}
	mod, err := r.latestModTime()
	if err != nil {
		return nil, err
	}
	if err := r.load(mod); err != nil {
		return nil, err
	}
	r.lastCheck = r.now()
	return r, nil
}

// tlsConfig returns a server TLS config backed by the reloader.
func (r *certReloader) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.getCertificate,
	}
}

// getCertificate keeps serving the previous pair if a reload fails.
func (r *certReloader) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.lastCheck) < r.interval {
		return r.cert, nil
	}
	r.lastCheck = now

	mod, err := r.latestModTime()
	if err != nil {
		r.logger.Error("failed to stat tls files", "error", err)
		return r.cert, nil
	}
	if mod.After(r.modTime) {
		if err := r.load(mod); err != nil {
			r.logger.Error("failed to reload certificate", "error", err)
		}
	}
	return r.cert, nil
}

func (r *certReloader) latestModTime() (time.Time, error) {
	var latest time.Time
	for _, f := range []string{r.certFile, r.keyFile} {
		st, err := os.Stat(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("stat %s: %w", f, err)
		}
		if st.ModTime().After(latest) {
			latest = st.ModTime()
		}
	}
	return latest, nil
}

func (r *certReloader) load(mod time.Time) error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load key pair: %w", err)
	}
	r.cert = &cert
	r.modTime = mod
	r.logger.Info("loaded tls certificate", "cert", r.certFile, "key", r.keyFile)
	return nil
}
