package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Engine struct {
		ReleaseDurationMinutes int    `yaml:"release_duration_minutes"`
		ManualPartyThreshold   int    `yaml:"manual_party_threshold"`
		SweepIntervalMinutes   int    `yaml:"sweep_interval_minutes"`
		AuditIntervalMinutes   int    `yaml:"audit_interval_minutes"`
		Timezone               string `yaml:"timezone"`
	} `yaml:"engine"`

	Store struct {
		Backend        string `yaml:"backend"` // sqlite, sheets, excel, memory
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		Fallback       string `yaml:"fallback,omitempty"` // optional failover backend
	} `yaml:"store"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		StoragePath   string `yaml:"storage_path"`
		IntervalHours int    `yaml:"interval_hours"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Sheets struct {
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"sheets"`

	Excel struct {
		Path string `yaml:"path"`
	} `yaml:"excel"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	API struct {
		Port int `yaml:"port"`
	} `yaml:"api"`

	Telegram struct {
		BotToken string  `yaml:"bot_token"`
		Managers []int64 `yaml:"managers"`
	} `yaml:"telegram"`

	Restaurants struct {
		Path                 string `yaml:"path"`
		ReloadIntervalSecond int    `yaml:"reload_interval_seconds"`
	} `yaml:"restaurants"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tablero.db"
	}
	if cfg.Restaurants.Path == "" {
		cfg.Restaurants.Path = "configs/restaurants.yaml"
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ReleaseDuration returns the occupancy window length (2h business rule).
func (c *Config) ReleaseDuration() time.Duration {
	if c.Engine.ReleaseDurationMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.Engine.ReleaseDurationMinutes) * time.Minute
}

// ManualPartyThreshold returns the party size above which allocation is
// routed to a human.
func (c *Config) ManualPartyThreshold() int {
	if c.Engine.ManualPartyThreshold <= 0 {
		return 6
	}
	return c.Engine.ManualPartyThreshold
}

// SweepInterval returns how often the release sweeper runs.
func (c *Config) SweepInterval() time.Duration {
	if c.Engine.SweepIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Engine.SweepIntervalMinutes) * time.Minute
}

// AuditInterval returns how often the conflict auditor runs.
func (c *Config) AuditInterval() time.Duration {
	if c.Engine.AuditIntervalMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Engine.AuditIntervalMinutes) * time.Minute
}

// StoreTimeout bounds every call against the storage collaborator.
func (c *Config) StoreTimeout() time.Duration {
	if c.Store.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// CacheTTL returns the snapshot cache TTL; zero disables the cache.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// Location resolves the configured timezone, defaulting to local time.
func (c *Config) Location() *time.Location {
	if c.Engine.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RestaurantsReloadInterval returns how often restaurants.yaml is polled.
func (c *Config) RestaurantsReloadInterval() time.Duration {
	if c.Restaurants.ReloadIntervalSecond <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Restaurants.ReloadIntervalSecond) * time.Second
}
