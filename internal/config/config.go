package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig holds the settings of the flow-stat cache and its report pipeline.
type CacheConfig struct {
	StalenessWindow     string `yaml:"staleness_window"`
	ExpiryCheckInterval string `yaml:"expiry_check_interval"`
	NumWorkers          int    `yaml:"num_workers"`
	SizeOfReportChannel int    `yaml:"size_of_report_channel"`
}

// NATSConfig holds the connection and subject settings for the switch transport.
type NATSConfig struct {
	URL              string `yaml:"url"`
	FlowStatsSubject string `yaml:"flow_stats_subject"`
	PortStatsSubject string `yaml:"port_stats_subject"`
	FlowModPrefix    string `yaml:"flow_mod_prefix"`
}

// APIConfig holds the listen addresses of the front end.
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// LogConfig holds the logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// GobConfig holds the configuration for the gob snapshot writer.
type GobConfig struct {
	RootPath string `yaml:"root_path"`
}

// SQLiteConfig holds the configuration for the SQLite snapshot writer.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the configuration for the Redis snapshot writer.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ClickHouseConfig holds the configuration for the ClickHouse writer and querier.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// WriterDef defines a single snapshot writer.
type WriterDef struct {
	Type             string           `yaml:"type"`
	Enabled          bool             `yaml:"enabled"`
	SnapshotInterval string           `yaml:"snapshot_interval"`
	Gob              GobConfig        `yaml:"gob"`
	SQLite           SQLiteConfig     `yaml:"sqlite"`
	Redis            RedisConfig      `yaml:"redis"`
	ClickHouse       ClickHouseConfig `yaml:"clickhouse"`
}

// SnapshotConfig holds the snapshot writers and the store used at startup.
type SnapshotConfig struct {
	// RestoreFrom names the writer type whose store is loaded on start.
	// Empty disables restore.
	RestoreFrom string      `yaml:"restore_from"`
	Writers     []WriterDef `yaml:"writers"`
}

// PortDef is one port of a slice's flowspace and the VLANs allowed on it.
type PortDef struct {
	Port  uint16 `yaml:"port"`
	VLANs string `yaml:"vlans"`
}

// SwitchDef is a slice's flowspace on one switch.
type SwitchDef struct {
	DPID  string    `yaml:"dpid"`
	Ports []PortDef `yaml:"ports"`
}

// SliceDef defines a single slice.
type SliceDef struct {
	Name          string      `yaml:"name"`
	TagManagement bool        `yaml:"tag_management"`
	Switches      []SwitchDef `yaml:"switches"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	NATS     NATSConfig     `yaml:"nats"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Slices   []SliceDef     `yaml:"slices"`
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.StalenessWindow == "" {
		c.Cache.StalenessWindow = "60s"
	}
	if c.Cache.ExpiryCheckInterval == "" {
		c.Cache.ExpiryCheckInterval = "5s"
	}
	if c.Cache.NumWorkers <= 0 {
		c.Cache.NumWorkers = 4
	}
	if c.Cache.SizeOfReportChannel <= 0 {
		c.Cache.SizeOfReportChannel = 1024
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://127.0.0.1:4222"
	}
	if c.NATS.FlowStatsSubject == "" {
		c.NATS.FlowStatsSubject = "fsfw.stats.flows"
	}
	if c.NATS.PortStatsSubject == "" {
		c.NATS.PortStatsSubject = "fsfw.stats.ports"
	}
	if c.NATS.FlowModPrefix == "" {
		c.NATS.FlowModPrefix = "fsfw.switch"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks durations, writer types and slice definitions.
func (c *Config) Validate() error {
	window, err := time.ParseDuration(c.Cache.StalenessWindow)
	if err != nil {
		return fmt.Errorf("invalid cache staleness_window: %w", err)
	}
	if window <= 0 {
		return errors.New("cache staleness_window must be a positive duration")
	}
	if _, err := time.ParseDuration(c.Cache.ExpiryCheckInterval); err != nil {
		return fmt.Errorf("invalid cache expiry_check_interval: %w", err)
	}

	types := make(map[string]bool)
	for i, w := range c.Snapshot.Writers {
		if w.Type == "" {
			return fmt.Errorf("snapshot writer %d has no type", i)
		}
		if !w.Enabled {
			continue
		}
		if _, err := time.ParseDuration(w.SnapshotInterval); err != nil {
			return fmt.Errorf("invalid snapshot_interval for writer '%s': %w", w.Type, err)
		}
		types[w.Type] = true
	}
	if c.Snapshot.RestoreFrom != "" && !types[c.Snapshot.RestoreFrom] {
		return fmt.Errorf("restore_from '%s' does not name an enabled snapshot writer", c.Snapshot.RestoreFrom)
	}

	names := make(map[string]bool)
	for _, s := range c.Slices {
		if s.Name == "" {
			return errors.New("slice with empty name")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate slice '%s'", s.Name)
		}
		names[s.Name] = true
		for _, sw := range s.Switches {
			if sw.DPID == "" {
				return fmt.Errorf("slice '%s' has a switch without dpid", s.Name)
			}
		}
	}
	return nil
}

// StalenessWindow returns the parsed cache staleness window.
func (c *Config) StalenessWindow() time.Duration {
	d, _ := time.ParseDuration(c.Cache.StalenessWindow)
	return d
}

// ExpiryCheckInterval returns the parsed interval of the expiry checker.
func (c *Config) ExpiryCheckInterval() time.Duration {
	d, _ := time.ParseDuration(c.Cache.ExpiryCheckInterval)
	return d
}

// Writer returns the first enabled writer of the given type.
func (c *Config) Writer(typ string) (WriterDef, bool) {
	for _, w := range c.Snapshot.Writers {
		if w.Enabled && w.Type == typ {
			return w, true
		}
	}
	return WriterDef{}, false
}
