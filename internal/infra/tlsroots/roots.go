package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ErrNoCertsFound is returned when PEM data holds no certificate.
var ErrNoCertsFound = errors.New("tlsroots: no certificates found in PEM data")

// Pool is a set of trusted root certificates.
type Pool struct {
	certPool *x509.CertPool
}

// NewPool returns a pool seeded with the system roots, or an empty pool
// where the system roots are unavailable.
func NewPool() *Pool {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}
	return &Pool{certPool: pool}
}

// NewEmptyPool returns a pool without system roots.
func NewEmptyPool() *Pool {
	return &Pool{certPool: x509.NewCertPool()}
}

// AddCertFile adds every certificate of a PEM file.
func (p *Pool) AddCertFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read cert file %s: %w", path, err)
	}
	if err := p.AddCertPEM(data); err != nil {
		return fmt.Errorf("%w: %s", err, path)
	}
	return nil
}

// AddCertPEM adds the certificates of PEM-encoded data. Blocks other than
// CERTIFICATE are skipped.
func (p *Pool) AddCertPEM(pemData []byte) error {
	var added int
	for len(pemData) > 0 {
		var block *pem.Block
		block, pemData = pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("tlsroots: parse certificate: %w", err)
		}
		p.certPool.AddCert(cert)
		added++
	}

	if added == 0 {
		return ErrNoCertsFound
	}
	return nil
}

// Pool returns the underlying x509.CertPool.
func (p *Pool) Pool() *x509.CertPool {
	return p.certPool
}

// ClientOptions selects the roots and client certificate of a collector
// connection. CertFile and KeyFile are set together or not at all.
type ClientOptions struct {
	CAFile   string
	CertFile string
	KeyFile  string
	Logger   *slog.Logger
}

// IsZero reports whether o asks for nothing beyond the system roots.
func (o ClientOptions) IsZero() bool {
	return o.CAFile == "" && o.CertFile == "" && o.KeyFile == ""
}

// ClientConfig returns a TLS client configuration trusting the system
// roots plus CAFile. With a certificate pair it also returns the Watcher
// serving it; the caller starts and stops the watcher.
func ClientConfig(opts ClientOptions) (*tls.Config, *Watcher, error) {
	pool := NewPool()
	if opts.CAFile != "" {
		if err := pool.AddCertFile(opts.CAFile); err != nil {
			return nil, nil, err
		}
	}
	cfg := &tls.Config{
		RootCAs:    pool.Pool(),
		MinVersion: tls.VersionTLS12,
	}
	if opts.CertFile == "" && opts.KeyFile == "" {
		return cfg, nil, nil
	}

	var wopts []WatcherOption
	if opts.Logger != nil {
		wopts = append(wopts, WithLogger(opts.Logger))
	}
	w, err := NewWatcher(opts.CertFile, opts.KeyFile, wopts...)
	if err != nil {
		return nil, nil, err
	}
	cfg.GetClientCertificate = w.GetClientCertificate
	return cfg, w, nil
}
