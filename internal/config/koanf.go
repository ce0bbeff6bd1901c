package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"couplesync/backend/internal/models"
)

const (
	EnvPrefix        = "COUPLESYNC_"
	ConfigPathEnvVar = "COUPLESYNC_CONFIG"
)

// DefaultConfigPaths are tried in order when COUPLESYNC_CONFIG is unset.
var DefaultConfigPaths = []string{
	"couplesync.yaml",
	"couplesync.yml",
}

// sliceConfigPaths may arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{"mood.negative"}

// Load reads .env (if present), then builds the layered configuration.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFrom(findConfigFile())
}

// LoadFrom builds the configuration from defaults, the YAML file at path
// (skipped when empty) and the environment.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps COUPLESYNC_REDIS__ADDR to redis.addr and
// COUPLESYNC_RETENTION_WINDOW to retention_window.
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Role != "" {
		if _, err := models.ParseRole(c.Role); err != nil {
			return fmt.Errorf("role: %w", err)
		}
	}
	if c.Store.Driver == "redis" && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when store.driver is redis")
	}
	if c.Settings.Driver == "postgres" && c.Settings.DSN == "" {
		return errors.New("settings.dsn is required when settings.driver is postgres")
	}
	if c.Settings.Driver == "sqlite" && c.Settings.Path == "" {
		return errors.New("settings.path is required when settings.driver is sqlite")
	}
	if c.LeaseTTL <= c.HeartbeatInterval {
		return fmt.Errorf("lease_ttl (%s) must exceed heartbeat_interval (%s)", c.LeaseTTL, c.HeartbeatInterval)
	}
	return nil
}
