package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/memscope-go/internal/infra/confloader"
)

// Watcher serves a client certificate pair and reloads it when either
// file changes. A pair that fails to load keeps the previous one in
// service.
type Watcher struct {
	certFile string
	keyFile  string
	logger   *slog.Logger
	settle   time.Duration

	cert atomic.Pointer[tls.Certificate]
	fw   *confloader.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithSettle sets how long both files must stay quiet before a reload.
// Rotation tools write the certificate and key one after the other.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.settle = d }
}

// NewWatcher loads the pair and prepares to watch it. Nothing is watched
// until Start.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   slog.Default(),
		settle:   confloader.DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(w.logger),
		confloader.WithSettle(w.settle),
	)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: %w", err)
	}
	for _, f := range []string{certFile, keyFile} {
		if err := fw.Watch(f); err != nil {
			fw.Stop()
			return nil, fmt.Errorf("tlsroots: watch %s: %w", f, err)
		}
	}
	fw.OnChange(func(string) {
		if err := w.reload(); err != nil {
			w.logger.Warn("client certificate reload failed, keeping the previous pair", "error", err)
		}
	})
	w.fw = fw
	return w, nil
}

// Start watches until Stop.
func (w *Watcher) Start() { w.fw.Start() }

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() { w.fw.StartAsync() }

// Stop ends watching. It may be called more than once.
func (w *Watcher) Stop() {
	if err := w.fw.Stop(); err != nil {
		w.logger.Debug("client certificate watcher close", "error", err)
	}
}

// GetClientCertificate returns the current pair. It has the signature of
// tls.Config.GetClientCertificate.
func (w *Watcher) GetClientCertificate(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
	return w.cert.Load(), nil
}

func (w *Watcher) reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair %s: %w", w.certFile, err)
	}
	w.cert.Store(&cert)
	w.logger.Info("client certificate loaded", "cert_file", w.certFile)
	return nil
}
