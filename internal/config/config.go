// Package config loads and validates hexagondb's server configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AofFsync is the durability policy for append-only log writes.
type AofFsync string

const (
	AofFsyncAlways   AofFsync = "always"
	AofFsyncEverySec AofFsync = "everysec"
	AofFsyncNo       AofFsync = "no"
)

// Config holds every option hexagondb recognizes. Server-section fields
// require a restart to take effect; Persistence/Memory/Security are
// hot-reloadable via SIGHUP (handled in cmd/hexagondb-server) or a file
// change (see Watch).
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Security    SecurityConfig    `mapstructure:"security"`
}

type ServerConfig struct {
	BindAddress    string `mapstructure:"bind_address"`
	Port           int    `mapstructure:"port"`
	MaxConnections int    `mapstructure:"max_connections"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type PersistenceConfig struct {
	AofEnabled     bool     `mapstructure:"aof_enabled"`
	AofFsync       AofFsync `mapstructure:"aof_fsync"`
	AofPath        string   `mapstructure:"aof_path"`
	RdbEnabled     bool     `mapstructure:"rdb_enabled"`
	RdbSaveInterval int     `mapstructure:"rdb_save_interval"`
	RdbMinChanges  int      `mapstructure:"rdb_min_changes"`
	RdbPath        string   `mapstructure:"rdb_path"`
	RdbBackupCount int      `mapstructure:"rdb_backup_count"`
}

type MemoryConfig struct {
	MaxMemory string `mapstructure:"maxmemory"`
}

type SecurityConfig struct {
	Password string `mapstructure:"password"`
}

// Default returns a Config populated with hexagondb's built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:    "127.0.0.1",
			Port:           2112,
			MaxConnections: 10000,
			TimeoutSeconds: 0,
		},
		Persistence: PersistenceConfig{
			AofEnabled:      false,
			AofFsync:        AofFsyncEverySec,
			AofPath:         "hexagondb.aof",
			RdbEnabled:      false,
			RdbSaveInterval: 300,
			RdbMinChanges:   1,
			RdbPath:         "hexagondb.rdb",
			RdbBackupCount:  0,
		},
		Memory: MemoryConfig{
			MaxMemory: "",
		},
		Security: SecurityConfig{
			Password: "",
		},
	}
}

// Load reads hexagondb.toml (or the given path) plus HEXAGONDB_* environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hexagondb")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hexagondb/")
		v.AddConfigPath("$HOME/.hexagondb")
	}

	v.SetEnvPrefix("HEXAGONDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.bind_address", cfg.Server.BindAddress)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.max_connections", cfg.Server.MaxConnections)
	v.SetDefault("server.timeout_seconds", cfg.Server.TimeoutSeconds)

	v.SetDefault("persistence.aof_enabled", cfg.Persistence.AofEnabled)
	v.SetDefault("persistence.aof_fsync", string(cfg.Persistence.AofFsync))
	v.SetDefault("persistence.aof_path", cfg.Persistence.AofPath)
	v.SetDefault("persistence.rdb_enabled", cfg.Persistence.RdbEnabled)
	v.SetDefault("persistence.rdb_save_interval", cfg.Persistence.RdbSaveInterval)
	v.SetDefault("persistence.rdb_min_changes", cfg.Persistence.RdbMinChanges)
	v.SetDefault("persistence.rdb_path", cfg.Persistence.RdbPath)
	v.SetDefault("persistence.rdb_backup_count", cfg.Persistence.RdbBackupCount)

	v.SetDefault("memory.maxmemory", cfg.Memory.MaxMemory)
	v.SetDefault("security.password", cfg.Security.Password)
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("server.max_connections must be at least 1")
	}
	switch c.Persistence.AofFsync {
	case AofFsyncAlways, AofFsyncEverySec, AofFsyncNo:
	default:
		return fmt.Errorf("invalid persistence.aof_fsync: %s (must be always, everysec, or no)", c.Persistence.AofFsync)
	}
	if c.Persistence.RdbSaveInterval < 1 {
		return fmt.Errorf("persistence.rdb_save_interval must be at least 1")
	}
	return nil
}

// ParseMaxMemory converts the human-readable memory.maxmemory string (e.g.
// "512MB") into a byte count. Zero means unlimited.
func (c *Config) ParseMaxMemory() (int64, error) {
	size := strings.ToUpper(strings.TrimSpace(c.Memory.MaxMemory))
	if size == "" {
		return 0, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(size, "KB"):
		multiplier = 1024
		size = strings.TrimSuffix(size, "KB")
	case strings.HasSuffix(size, "MB"):
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(size, "MB")
	case strings.HasSuffix(size, "GB"):
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(size, "GB")
	}

	var value int64
	if _, err := fmt.Sscanf(size, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid memory.maxmemory: %s", c.Memory.MaxMemory)
	}
	return value * multiplier, nil
}

// Watch re-reads the config file whenever it changes on disk (driven by
// viper's fsnotify file watch) and invokes onReload with the freshly
// parsed Config. Only the persistence/memory/security sections are expected
// to be applied live; server-section changes are reported but require a
// restart.
func Watch(path string, onReload func(*Config)) error {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hexagondb")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load(path)
		if err != nil {
			return
		}
		onReload(cfg)
	})
	v.WatchConfig()
	return nil
}

// Timeout exposes the per-socket idle timeout as a time.Duration; zero means
// no timeout.
func (c *Config) Timeout() time.Duration {
	if c.Server.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
