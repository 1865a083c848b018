package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	if NewPool().Pool() == nil {
		t.Fatal("NewPool().Pool() returned nil")
	}
	if NewEmptyPool().Pool() == nil {
		t.Fatal("NewEmptyPool().Pool() returned nil")
	}
}

func TestAddCertPEM(t *testing.T) {
	cert := writeCertPair(t, t.TempDir())
	keyBlock := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: []byte{1, 2, 3}})

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"single", cert.pem, nil},
		{"multiple", append(append([]byte{}, cert.pem...), cert.pem...), nil},
		{"skips other blocks", append(append([]byte{}, keyBlock...), cert.pem...), nil},
		{"empty", nil, ErrNoCertsFound},
		{"only a key", keyBlock, ErrNoCertsFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddCertPEM(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddCertPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	bad := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := NewEmptyPool().AddCertPEM(bad); err == nil {
		t.Error("AddCertPEM() accepted a malformed certificate")
	}
}

func TestAddCertFile(t *testing.T) {
	dir := t.TempDir()
	cert := writeCertPair(t, dir)

	if err := NewEmptyPool().AddCertFile(cert.certFile); err != nil {
		t.Errorf("AddCertFile() error = %v", err)
	}
	if err := NewEmptyPool().AddCertFile(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("AddCertFile() error = nil for a missing file")
	}
	if err := NewEmptyPool().AddCertFile(cert.keyFile); !errors.Is(err, ErrNoCertsFound) {
		t.Errorf("AddCertFile(key) error = %v, want ErrNoCertsFound", err)
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	cert := writeCertPair(t, dir)

	t.Run("system roots", func(t *testing.T) {
		cfg, w, err := ClientConfig(ClientOptions{})
		if err != nil {
			t.Fatalf("ClientConfig() error = %v", err)
		}
		if w != nil || cfg.GetClientCertificate != nil {
			t.Error("no client certificate expected")
		}
		if cfg.RootCAs == nil {
			t.Error("RootCAs is nil")
		}
	})

	t.Run("custom CA", func(t *testing.T) {
		if _, _, err := ClientConfig(ClientOptions{CAFile: cert.certFile}); err != nil {
			t.Errorf("ClientConfig() error = %v", err)
		}
		if _, _, err := ClientConfig(ClientOptions{CAFile: filepath.Join(dir, "missing.pem")}); err == nil {
			t.Error("ClientConfig() error = nil for a missing CA file")
		}
	})

	t.Run("client certificate", func(t *testing.T) {
		cfg, w, err := ClientConfig(ClientOptions{CertFile: cert.certFile, KeyFile: cert.keyFile})
		if err != nil {
			t.Fatalf("ClientConfig() error = %v", err)
		}
		if w == nil {
			t.Fatal("ClientConfig() returned no watcher")
		}
		defer w.Stop()
		got, err := cfg.GetClientCertificate(nil)
		if err != nil || got == nil || string(got.Certificate[0]) != string(cert.der) {
			t.Errorf("GetClientCertificate() = %v, %v", got, err)
		}
	})

	t.Run("key missing", func(t *testing.T) {
		if _, _, err := ClientConfig(ClientOptions{CertFile: cert.certFile}); err == nil {
			t.Error("ClientConfig() error = nil without a key")
		}
	})
}

func TestClientOptions_IsZero(t *testing.T) {
	if !(ClientOptions{}).IsZero() {
		t.Error("empty options should be zero")
	}
	if (ClientOptions{CAFile: "ca.pem"}).IsZero() {
		t.Error("options with a CA should not be zero")
	}
}

type certPair struct {
	certFile, keyFile string
	der               []byte
	pem               []byte
}

// writeCertPair writes a fresh self-signed pair as client.crt and
// client.key under dir.
func writeCertPair(t *testing.T, dir string) certPair {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		t.Fatal(err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "memscope-test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	p := certPair{
		certFile: filepath.Join(dir, "client.crt"),
		keyFile:  filepath.Join(dir, "client.key"),
		der:      der,
		pem:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
	if err := os.WriteFile(p.certFile, p.pem, 0o644); err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(p.keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}
