// Package redisutil turns pkgvault process settings into Redis clients.
package redisutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cordum/pkgvault/core/infra/config"
)

const pingTimeout = 2 * time.Second

// Connect dials url with the cluster and TLS settings config.Load reads from
// the environment. An empty url falls back to the configured one.
func Connect(ctx context.Context, url string) (redis.UniversalClient, error) {
	cfg := config.Load()
	if strings.TrimSpace(url) != "" {
		cfg.RedisURL = url
	}
	return ConnectConfig(ctx, cfg)
}

// ConnectConfig builds a client from cfg and verifies it answers PING.
// Every Redis-backed pkgvault store goes through here.
func ConnectConfig(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)
	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Options maps the Redis part of cfg onto go-redis options. Cluster
// addresses replace the URL host; credentials and DB still come from the URL.
func Options(cfg *config.Config) (*redis.UniversalOptions, error) {
	if cfg == nil {
		return nil, errors.New("redis config required")
	}
	parsed, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	tlsCfg, err := clientTLS(cfg.RedisTLS, parsed.TLSConfig)
	if err != nil {
		return nil, err
	}
	addrs := cfg.RedisClusterAddrs
	if len(addrs) == 0 {
		addrs = []string{parsed.Addr}
	}
	return &redis.UniversalOptions{
		Addrs:     addrs,
		Username:  parsed.Username,
		Password:  parsed.Password,
		DB:        parsed.DB,
		TLSConfig: tlsCfg,
	}, nil
}

// clientTLS layers settings over the config a rediss:// URL already implies.
func clientTLS(settings config.RedisTLS, fromURL *tls.Config) (*tls.Config, error) {
	if !settings.Enabled() {
		return fromURL, nil
	}
	out := &tls.Config{MinVersion: tls.VersionTLS12}
	if fromURL != nil {
		out = fromURL.Clone()
	}
	if settings.ServerName != "" {
		out.ServerName = settings.ServerName
	}
	out.InsecureSkipVerify = out.InsecureSkipVerify || settings.Insecure

	if settings.CAFile != "" {
		pool, err := caPool(settings.CAFile, out.RootCAs)
		if err != nil {
			return nil, err
		}
		out.RootCAs = pool
	}
	switch {
	case settings.CertFile == "" && settings.KeyFile == "":
	case settings.CertFile == "" || settings.KeyFile == "":
		return nil, errors.New("redis tls: cert and key must be set together")
	default:
		pair, err := tls.LoadX509KeyPair(settings.CertFile, settings.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("redis tls keypair: %w", err)
		}
		out.Certificates = []tls.Certificate{pair}
	}
	return out, nil
}

func caPool(path string, pool *x509.CertPool) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("redis tls ca: %w", err)
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("redis tls ca %s: no certificates found", path)
	}
	return pool, nil
}
