package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Data struct {
		PartitionDir string `yaml:"partition_dir"`
		ScenarioFile string `yaml:"scenario_file"`
		ExogFile     string `yaml:"exog_file"`
		PanelFiles   struct {
			China    string `yaml:"china"`
			Overseas string `yaml:"overseas"`
		} `yaml:"panel_files"`
		ModelDir string `yaml:"model_dir"`
	} `yaml:"data"`
	Forecast struct {
		HorizonCap      int `yaml:"horizon_cap"`
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
		CacheMaxEntries int `yaml:"cache_max_entries"`
		MaxPoints       int `yaml:"max_points"`
	} `yaml:"forecast"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Schedule struct {
		PurgeCron   string `yaml:"purge_cron"`
		RefreshCron string `yaml:"refresh_cron"`
	} `yaml:"schedule"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("HOTEL_ALLOCATION_DATA_DIR"); v != "" {
		cfg.Data.PartitionDir = v
	}
	if v := os.Getenv("SCENARIO_SHOCK_FILE"); v != "" {
		cfg.Data.ScenarioFile = v
	}
	if v := os.Getenv("FORECAST_EXOG_FILE"); v != "" {
		cfg.Data.ExogFile = v
	}
	if v := os.Getenv("FORECAST_PANEL_CHINA"); v != "" {
		cfg.Data.PanelFiles.China = v
	}
	if v := os.Getenv("FORECAST_PANEL_OVERSEAS"); v != "" {
		cfg.Data.PanelFiles.Overseas = v
	}
	if v := os.Getenv("FORECAST_MODEL_DIR"); v != "" {
		cfg.Data.ModelDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Data.PartitionDir == "" {
		cfg.Data.PartitionDir = "data/hotel_allocation"
	}
	if cfg.Data.ScenarioFile == "" {
		cfg.Data.ScenarioFile = filepath.Join(cfg.Data.PartitionDir, "scenario_event_shock_rates.csv")
	}
	if cfg.Data.ExogFile == "" {
		cfg.Data.ExogFile = filepath.Join(cfg.Data.PartitionDir, "jnto_fx_merged_filled.csv")
	}
	if cfg.Data.PanelFiles.China == "" {
		cfg.Data.PanelFiles.China = filepath.Join(cfg.Data.PartitionDir, "panel_china_with_features.csv")
	}
	if cfg.Data.PanelFiles.Overseas == "" {
		cfg.Data.PanelFiles.Overseas = filepath.Join(cfg.Data.PartitionDir, "panel_overseas_with_features.csv")
	}
	if cfg.Data.ModelDir == "" {
		cfg.Data.ModelDir = "models/lightgbm"
	}
	if cfg.Forecast.HorizonCap == 0 {
		cfg.Forecast.HorizonCap = 24
	}
	if cfg.Forecast.CacheTTLSeconds == 0 {
		cfg.Forecast.CacheTTLSeconds = 300
	}
	if cfg.Forecast.CacheMaxEntries == 0 {
		cfg.Forecast.CacheMaxEntries = 128
	}
	if cfg.Forecast.MaxPoints == 0 {
		cfg.Forecast.MaxPoints = 2500
	}
	if cfg.Schedule.PurgeCron == "" {
		cfg.Schedule.PurgeCron = "0 */5 * * * *"
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "0 0 4 * * *"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

// Validate checks that all required fields are set and within bounds.
func (c *Config) Validate() error {
	if c.Data.PartitionDir == "" {
		return fmt.Errorf("data.partition_dir is required")
	}
	if c.Forecast.HorizonCap < 1 || c.Forecast.HorizonCap > 24 {
		return fmt.Errorf("forecast.horizon_cap must be in 1..24")
	}
	if c.Forecast.CacheTTLSeconds < 1 {
		return fmt.Errorf("forecast.cache_ttl_seconds must be positive")
	}
	if c.Forecast.CacheMaxEntries < 1 {
		return fmt.Errorf("forecast.cache_max_entries must be positive")
	}
	return nil
}
