// Package config builds one Config from three layers, highest precedence
// last: an optional .env file, an optional YAML file, and WRMS_-prefixed
// environment variables where "__" maps to "." (WRMS_HTTP__LISTEN_ADDR sets
// http.listen_addr). Values beginning with "vault:" are resolved through
// Vault before unmarshalling.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"

	"wp-fleet-manager/secrets"
)

const envPrefix = "WRMS_"

type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Database  DatabaseConfig  `koanf:"database"`
	Auth      AuthConfig      `koanf:"auth"`
	Remote    RemoteConfig    `koanf:"remote"`
	Sync      SyncConfig      `koanf:"sync"`
	Log       LogConfig       `koanf:"log"`
	Provision ProvisionConfig `koanf:"provision"`
	Vault     VaultConfig     `koanf:"vault"`
}

type HTTPConfig struct {
	ListenAddr     string   `koanf:"listen_addr" validate:"required,hostname_port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite mysql"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `koanf:"token_ttl" validate:"gt=0"`
}

type RemoteConfig struct {
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	UpdateTimeout  time.Duration `koanf:"update_timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes" validate:"gt=0"`
	UserAgent      string        `koanf:"user_agent"`
	VerifyAttempts int           `koanf:"verify_attempts" validate:"gte=1,lte=10"`
	VerifyInterval time.Duration `koanf:"verify_interval" validate:"gt=0"`
	RunTimeout     time.Duration `koanf:"run_timeout" validate:"gt=0"`
}

type SyncConfig struct {
	Concurrency int `koanf:"concurrency" validate:"gte=1,lte=64"`
}

type LogConfig struct {
	Dir   string `koanf:"dir"`
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	Tee   bool   `koanf:"tee"`
}

type ProvisionConfig struct {
	PluginArchive string        `koanf:"plugin_archive"`
	KnownHosts    string        `koanf:"known_hosts"`
	SSHTimeout    time.Duration `koanf:"ssh_timeout" validate:"gt=0"`
}

type VaultConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address" validate:"required_if=Enabled true"`
	Token   string `koanf:"token"`
	Mount   string `koanf:"mount"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			ListenAddr:     ":8081",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "wrms.db"},
		Auth:     AuthConfig{TokenTTL: 8 * time.Hour},
		Remote: RemoteConfig{
			Timeout:        15 * time.Second,
			UpdateTimeout:  120 * time.Second,
			MaxBodyBytes:   4 << 20,
			UserAgent:      "wp-fleet-manager/1.0",
			VerifyAttempts: 3,
			VerifyInterval: 5 * time.Second,
			RunTimeout:     30 * time.Minute,
		},
		Sync:      SyncConfig{Concurrency: 4},
		Log:       LogConfig{Dir: "logs", Level: "info", Tee: true},
		Provision: ProvisionConfig{SSHTimeout: 10 * time.Second},
		Vault:     VaultConfig{Mount: "secret"},
	}
}

var validate = validator.New()

// LoadConfig reads .env, the YAML file at path (or $WRMS_CONFIG, or
// ./config.yaml when present), and env overrides, then validates.
func LoadConfig(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadRemoteConfig reads the same layers as LoadConfig but validates only
// the remote section, for tools that talk to a site without serving the
// dashboard.
func LoadRemoteConfig(path string) (*RemoteConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(&cfg.Remote); err != nil {
		return nil, fmt.Errorf("invalid remote config: %w", err)
	}
	return &cfg.Remote, nil
}

func load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env overrides: %w", err)
	}

	if err := resolveSecrets(k); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// A comma-separated env value arrives as one string.
	if len(cfg.HTTP.AllowedOrigins) == 1 && strings.Contains(cfg.HTTP.AllowedOrigins[0], ",") {
		cfg.HTTP.AllowedOrigins = splitCSV(cfg.HTTP.AllowedOrigins[0])
	}
	return &cfg, nil
}

// resolveSecrets swaps vault: references for their values. Vault settings
// themselves come from the same layers.
func resolveSecrets(k *koanf.Koanf) error {
	var refs []string
	for _, key := range k.Keys() {
		if s, ok := k.Get(key).(string); ok && secrets.IsReference(s) {
			refs = append(refs, key)
		}
	}
	if len(refs) == 0 {
		return nil
	}
	if !k.Bool("vault.enabled") {
		return errors.New("config holds vault: references but vault.enabled is false")
	}

	resolver, err := secrets.NewResolver(k.String("vault.address"), k.String("vault.token"), k.String("vault.mount"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range refs {
		v, err := resolver.Resolve(ctx, k.String(key))
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", key, err)
		}
		if err := k.Set(key, v); err != nil {
			return err
		}
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
