package config

import (
	"os"
	"strings"
	"unicode"
)

const (
	defaultRedisURL      = "redis://localhost:6379"
	defaultStorageConfig = "config/storages.yaml"
	defaultVaultDir      = "/var/lib/pkgvault"
	defaultEntryStore    = EntryStoreMemory
	defaultSQLitePath    = "pkgvault-entries.db"
	envRedisURL          = "PKGVAULT_REDIS_URL"
	envStorageConfigPath = "PKGVAULT_STORAGE_CONFIG"
	envVaultDir          = "PKGVAULT_VAULT_DIR"
	envEntryStore        = "PKGVAULT_ENTRY_STORE"
	envSQLitePath        = "PKGVAULT_SQLITE_PATH"

	envRedisClusterAddrs  = "PKGVAULT_REDIS_CLUSTER_ADDRESSES"
	envRedisTLSCA         = "PKGVAULT_REDIS_TLS_CA"
	envRedisTLSCert       = "PKGVAULT_REDIS_TLS_CERT"
	envRedisTLSKey        = "PKGVAULT_REDIS_TLS_KEY"
	envRedisTLSServerName = "PKGVAULT_REDIS_TLS_SERVER_NAME"
	envRedisTLSInsecure   = "PKGVAULT_REDIS_TLS_INSECURE"
)

// Entry store backends.
const (
	EntryStoreMemory = "memory"
	EntryStoreRedis  = "redis"
	EntryStoreSQLite = "sqlite"
)

// Config holds process-level settings for pkgvault components.
type Config struct {
	RedisURL          string
	StorageConfigPath string
	VaultDir          string
	EntryStore        string
	SQLitePath        string

	// RedisClusterAddrs replaces the host of RedisURL when set.
	RedisClusterAddrs []string
	RedisTLS          RedisTLS
}

// RedisTLS holds client TLS material for Redis connections. File fields are
// paths; an empty value leaves that part of the TLS config alone.
type RedisTLS struct {
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Insecure   bool
}

// Enabled reports whether any TLS setting was given.
func (t RedisTLS) Enabled() bool {
	return t.CAFile != "" || t.CertFile != "" || t.KeyFile != "" || t.ServerName != "" || t.Insecure
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}
	storageCfg := os.Getenv(envStorageConfigPath)
	if storageCfg == "" {
		storageCfg = defaultStorageConfig
	}
	vaultDir := os.Getenv(envVaultDir)
	if vaultDir == "" {
		vaultDir = defaultVaultDir
	}
	entryStore := strings.ToLower(strings.TrimSpace(os.Getenv(envEntryStore)))
	switch entryStore {
	case EntryStoreMemory, EntryStoreRedis, EntryStoreSQLite:
	default:
		entryStore = defaultEntryStore
	}
	sqlitePath := os.Getenv(envSQLitePath)
	if sqlitePath == "" {
		sqlitePath = defaultSQLitePath
	}

	return &Config{
		RedisURL:          redisURL,
		StorageConfigPath: storageCfg,
		VaultDir:          vaultDir,
		EntryStore:        entryStore,
		SQLitePath:        sqlitePath,
		RedisClusterAddrs: envList(envRedisClusterAddrs),
		RedisTLS: RedisTLS{
			CAFile:     strings.TrimSpace(os.Getenv(envRedisTLSCA)),
			CertFile:   strings.TrimSpace(os.Getenv(envRedisTLSCert)),
			KeyFile:    strings.TrimSpace(os.Getenv(envRedisTLSKey)),
			ServerName: strings.TrimSpace(os.Getenv(envRedisTLSServerName)),
			Insecure:   envBool(envRedisTLSInsecure),
		},
	}
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// envList splits on commas and whitespace.
func envList(key string) []string {
	return strings.FieldsFunc(os.Getenv(key), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
