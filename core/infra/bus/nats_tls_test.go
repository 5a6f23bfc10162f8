package bus

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearNATSTLSEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{envNATSTLSCA, envNATSTLSCert, envNATSTLSKey, envNATSTLSInsecure, envNATSTLSServerName} {
		t.Setenv(key, "")
	}
}

func TestNATSTLSConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeKeyPair(t, dir, "events.cutty.internal")
	garbage := filepath.Join(dir, "garbage.pem")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	cases := []struct {
		name    string
		env     map[string]string
		wantNil bool
		wantErr string
		check   func(t *testing.T, cfg *tls.Config)
	}{
		{name: "unset", wantNil: true},
		{name: "blank values", env: map[string]string{envNATSTLSServerName: "  ", envNATSTLSInsecure: "no"}, wantNil: true},
		{
			name: "server name only",
			env:  map[string]string{envNATSTLSServerName: "events.cutty.internal"},
			check: func(t *testing.T, cfg *tls.Config) {
				if cfg.ServerName != "events.cutty.internal" || cfg.MinVersion != tls.VersionTLS12 {
					t.Fatalf("unexpected config %+v", cfg)
				}
				if cfg.RootCAs != nil || len(cfg.Certificates) != 0 || cfg.InsecureSkipVerify {
					t.Fatalf("server name must not enable other settings")
				}
			},
		},
		{
			name: "insecure",
			env:  map[string]string{envNATSTLSInsecure: "on"},
			check: func(t *testing.T, cfg *tls.Config) {
				if !cfg.InsecureSkipVerify {
					t.Fatalf("expected verification disabled")
				}
			},
		},
		{
			name: "mutual tls",
			env:  map[string]string{envNATSTLSCA: certPath, envNATSTLSCert: certPath, envNATSTLSKey: keyPath},
			check: func(t *testing.T, cfg *tls.Config) {
				if cfg.RootCAs == nil || len(cfg.Certificates) != 1 {
					t.Fatalf("expected CA pool and client certificate")
				}
			},
		},
		{name: "key without cert", env: map[string]string{envNATSTLSKey: keyPath}, wantErr: "set together"},
		{name: "missing ca", env: map[string]string{envNATSTLSCA: filepath.Join(dir, "absent.pem")}, wantErr: "ca read"},
		{name: "unparseable ca", env: map[string]string{envNATSTLSCA: garbage}, wantErr: "ca parse"},
		{name: "mismatched pair", env: map[string]string{envNATSTLSCert: certPath, envNATSTLSKey: garbage}, wantErr: "keypair"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearNATSTLSEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := natsTLSConfigFromEnv()
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantNil {
				if cfg != nil {
					t.Fatalf("expected no TLS config, got %+v", cfg)
				}
				return
			}
			if cfg == nil {
				t.Fatalf("expected TLS config")
			}
			tc.check(t, cfg)
		})
	}
}

func TestNewNatsBusRejectsBadTLSConfig(t *testing.T) {
	clearNATSTLSEnv(t)
	t.Setenv(envNATSTLSCA, filepath.Join(t.TempDir(), "absent.pem"))

	b, err := NewNatsBus("nats://127.0.0.1:1")
	if err == nil {
		b.Close()
		t.Fatalf("expected TLS setup error")
	}
	if !strings.Contains(err.Error(), "nats tls") {
		t.Fatalf("expected TLS error before dialing, got %v", err)
	}
}

func writeKeyPair(t *testing.T, dir, host string) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: host},
		DNSNames:              []string{host},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	certPath := filepath.Join(dir, "client.pem")
	keyPath := filepath.Join(dir, "client-key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
