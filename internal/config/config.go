package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the config file location.
const EnvPath = "VMAP_CONFIG"

type Config struct {
	VMap      VMapConfig      `toml:"vmap"`
	Stream    StreamConfig    `toml:"stream"`
	Network   NetworkConfig   `toml:"network"`
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Scripting ScriptingConfig `toml:"scripting"`
}

type VMapConfig struct {
	BasePath         string  `toml:"base_path"` // directory holding .vmtree, .vmtile and .vmo files
	MapList          string  `toml:"map_list"`  // YAML map list, empty to skip
	EnableLOS        bool    `toml:"enable_los"`
	EnableHeight     bool    `toml:"enable_height"`
	EnableMapLoading bool    `toml:"enable_map_loading"`
	PreloadWorkers   int     `toml:"preload_workers"`
	MaxSearchDist    float32 `toml:"max_search_dist"` // default for height queries
}

type StreamConfig struct {
	TickRate    time.Duration `toml:"tick_rate"`
	Radius      int           `toml:"radius"`       // tiles kept around each observer
	UnloadDelay time.Duration `toml:"unload_delay"` // grace before an unobserved tile is dropped
	RetryDelay  time.Duration `toml:"retry_delay"`  // wait before retrying a failed tile
	Workers     int           `toml:"workers"`      // concurrent tile loads
}

type NetworkConfig struct {
	BindAddress       string `toml:"bind_address"` // empty disables the query listener
	InQueueSize       int    `toml:"in_queue_size"`
	OutQueueSize      int    `toml:"out_queue_size"`
	MaxPacketsPerTick int    `toml:"max_packets_per_tick"`
	MaxPacketsPerSec  int    `toml:"max_packets_per_second"` // 0 = unlimited
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables the disable table
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // rotated log file, empty for stderr only
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type ScriptingConfig struct {
	Dir string `toml:"dir"` // Lua scripts run by vmaptool script
}

// Path returns the config path from VMAP_CONFIG, or def.
func Path(def string) string {
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return def
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.VMap.BasePath == "" {
		return fmt.Errorf("vmap.base_path is required")
	}
	if c.VMap.PreloadWorkers <= 0 {
		return fmt.Errorf("vmap.preload_workers must be positive, got %d", c.VMap.PreloadWorkers)
	}
	if c.Stream.Radius < 0 {
		return fmt.Errorf("stream.radius must not be negative, got %d", c.Stream.Radius)
	}
	if c.Stream.Workers <= 0 {
		return fmt.Errorf("stream.workers must be positive, got %d", c.Stream.Workers)
	}
	if c.Stream.TickRate <= 0 {
		return fmt.Errorf("stream.tick_rate must be positive")
	}
	if c.Network.BindAddress != "" {
		if c.Network.InQueueSize <= 0 || c.Network.OutQueueSize <= 0 {
			return fmt.Errorf("network queue sizes must be positive")
		}
		if c.Network.MaxPacketsPerTick <= 0 {
			return fmt.Errorf("network.max_packets_per_tick must be positive, got %d", c.Network.MaxPacketsPerTick)
		}
		if c.Network.MaxPacketsPerSec < 0 {
			return fmt.Errorf("network.max_packets_per_second must not be negative")
		}
	}
	return nil
}

func Defaults() *Config {
	return &Config{
		VMap: VMapConfig{
			BasePath:         "data/vmaps",
			MapList:          "data/yaml/map_list.yaml",
			EnableLOS:        true,
			EnableHeight:     true,
			EnableMapLoading: true,
			PreloadWorkers:   4,
			MaxSearchDist:    100,
		},
		Stream: StreamConfig{
			TickRate:    200 * time.Millisecond,
			Radius:      1,
			UnloadDelay: 30 * time.Second,
			RetryDelay:  time.Minute,
			Workers:     2,
		},
		Network: NetworkConfig{
			BindAddress:       "127.0.0.1:7780",
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 32,
			MaxPacketsPerSec:  600,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Scripting: ScriptingConfig{
			Dir: "scripts",
		},
	}
}
