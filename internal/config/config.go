// Package config содержит логику чтения конфигурации магазина игровых кодов.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress  = "localhost:8080"
	defaultLockTimeout = 10 * time.Second
	defaultTxTimeout   = 15 * time.Second
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	RedisAddress      string        `env:"REDIS_ADDRESS"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	CodeEncryptionKey string        `env:"CODE_ENCRYPTION_KEY"`
	LockTimeout       time.Duration `env:"TX_LOCK_TIMEOUT"`
	TxTimeout         time.Duration `env:"TX_TIMEOUT"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for idempotency keys")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth cookies")
	flag.StringVar(&cfg.CodeEncryptionKey, "k", "", "hex-encoded 32 byte key for game code encryption")
	flag.DurationVar(&cfg.LockTimeout, "lock-timeout", defaultLockTimeout, "row lock wait budget of an order transaction")
	flag.DurationVar(&cfg.TxTimeout, "tx-timeout", defaultTxTimeout, "total budget of an order transaction")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.CodeEncryptionKey != "" {
		cfg.CodeEncryptionKey = envCfg.CodeEncryptionKey
	}
	if envCfg.LockTimeout > 0 {
		cfg.LockTimeout = envCfg.LockTimeout
	}
	if envCfg.TxTimeout > 0 {
		cfg.TxTimeout = envCfg.TxTimeout
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = defaultTxTimeout
	}

	if cfg.LockTimeout > cfg.TxTimeout {
		return nil, fmt.Errorf("lock timeout %s exceeds transaction timeout %s", cfg.LockTimeout, cfg.TxTimeout)
	}

	return cfg, nil
}

// EncryptionKey декодирует ключ шифрования кодов.
func (c *Config) EncryptionKey() ([]byte, error) {
	key, err := hex.DecodeString(c.CodeEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode code encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("code encryption key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}
