package redisutil

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/cordum/pkgvault/core/infra/config"
)

func TestOptionsNoTLS(t *testing.T) {
	opts, err := Options(&config.Config{RedisURL: "redis://user:pw@localhost:6379/2"})
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if opts.TLSConfig != nil {
		t.Fatalf("expected nil TLS config")
	}
	if len(opts.Addrs) != 1 || opts.Addrs[0] != "localhost:6379" {
		t.Fatalf("unexpected addrs %v", opts.Addrs)
	}
	if opts.Username != "user" || opts.Password != "pw" || opts.DB != 2 {
		t.Fatalf("url credentials not carried: %+v", opts)
	}
}

func TestOptionsInsecureTLS(t *testing.T) {
	opts, err := Options(&config.Config{
		RedisURL: "redis://localhost:6379",
		RedisTLS: config.RedisTLS{Insecure: true, ServerName: "cache.internal"},
	})
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if opts.TLSConfig == nil || !opts.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}
	if opts.TLSConfig.ServerName != "cache.internal" {
		t.Fatalf("unexpected server name %q", opts.TLSConfig.ServerName)
	}
}

func TestOptionsTLSFromURLKept(t *testing.T) {
	opts, err := Options(&config.Config{RedisURL: "rediss://localhost:6380"})
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected rediss url to imply TLS")
	}
}

func TestOptionsTLSFiles(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeTempCert(t, dir)
	opts, err := Options(&config.Config{
		RedisURL: "redis://localhost:6379",
		RedisTLS: config.RedisTLS{CAFile: certPath, CertFile: certPath, KeyFile: keyPath},
	})
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.RootCAs == nil {
		t.Fatalf("expected root CAs set")
	}
	if len(opts.TLSConfig.Certificates) != 1 {
		t.Fatalf("expected client certificate")
	}
}

func TestOptionsRejectsBadTLS(t *testing.T) {
	dir := t.TempDir()
	certPath, _ := writeTempCert(t, dir)
	notPEM := filepath.Join(dir, "ca.txt")
	if err := os.WriteFile(notPEM, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cases := map[string]config.RedisTLS{
		"cert without key": {CertFile: certPath},
		"missing ca":       {CAFile: filepath.Join(dir, "missing.pem")},
		"ca without certs": {CAFile: notPEM},
	}
	for name, settings := range cases {
		cfg := &config.Config{RedisURL: "redis://localhost:6379", RedisTLS: settings}
		if _, err := Options(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Options(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestOptionsClusterAddrs(t *testing.T) {
	opts, err := Options(&config.Config{
		RedisURL:          "redis://localhost:6379",
		RedisClusterAddrs: []string{"a:1", "b:2", "c:3"},
	})
	if err != nil {
		t.Fatalf("Options error: %v", err)
	}
	if len(opts.Addrs) != 3 || opts.Addrs[0] != "a:1" {
		t.Fatalf("unexpected addrs %v", opts.Addrs)
	}
}

func TestConnectPings(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Fatalf("expected value written through client, got %q", got)
	}
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := Connect(context.Background(), "redis://"+addr); err == nil {
		t.Fatalf("expected connect error")
	}
	if _, err := Connect(context.Background(), "not-a-url"); err == nil {
		t.Fatalf("expected url parse error")
	}
}

func TestConnectReadsEnvironment(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("PKGVAULT_REDIS_URL", "redis://"+mr.Addr())
	client, err := Connect(context.Background(), "")
	if err != nil {
		t.Fatalf("connect with configured url: %v", err)
	}
	_ = client.Close()

	t.Setenv("PKGVAULT_REDIS_TLS_CERT", filepath.Join(t.TempDir(), "tls.crt"))
	if _, err := Connect(context.Background(), "redis://"+mr.Addr()); err == nil {
		t.Fatalf("expected tls settings from the environment to apply")
	}
}

func writeTempCert(t *testing.T, dir string) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	certPath := filepath.Join(dir, "tls.crt")
	keyPath := filepath.Join(dir, "tls.key")
	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}
