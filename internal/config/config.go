package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines tracker agent configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Owner   OwnerConfig   `yaml:"owner"`
	Tracker TrackerConfig `yaml:"tracker"`
	DB      DBConfig      `yaml:"db"`
	Log     LogConfig     `yaml:"log"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type OwnerConfig struct {
	ID          string `yaml:"id"`
	TaskID      string `yaml:"task_id"`
	Description string `yaml:"description"`
}

type TrackerConfig struct {
	ActivityInterval   time.Duration `yaml:"activity_interval"`
	CaptureInterval    time.Duration `yaml:"capture_interval"`
	ScreenshotInterval time.Duration `yaml:"screenshot_interval"`
	IdleTickThreshold  int           `yaml:"idle_tick_threshold"`
	OfflineCooldown    time.Duration `yaml:"offline_cooldown"`
	HealthInterval     time.Duration `yaml:"health_interval"`
	ReplayAttemptCap   int           `yaml:"replay_attempt_cap"`
	RetainedSessions   int           `yaml:"retained_sessions"`
	ScreenshotDir      string        `yaml:"screenshot_dir"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Tracker: TrackerConfig{
			ActivityInterval:   time.Minute,
			CaptureInterval:    5 * time.Second,
			ScreenshotInterval: 5 * time.Minute,
			IdleTickThreshold:  2,
			OfflineCooldown:    15 * time.Minute,
			HealthInterval:     30 * time.Second,
			ReplayAttemptCap:   5,
			RetainedSessions:   20,
			ScreenshotDir:      defaultScreenshotDir(),
		},
		DB: DBConfig{
			Path: "tracker.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	if path := os.Getenv("TRACKER_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if url := os.Getenv("TRACKER_API_URL"); url != "" {
		cfg.API.BaseURL = url
	}
	if token := os.Getenv("TRACKER_API_TOKEN"); token != "" {
		cfg.API.Token = token
	}
	if owner := os.Getenv("TRACKER_OWNER_ID"); owner != "" {
		cfg.Owner.ID = owner
	}
	if task := os.Getenv("TRACKER_TASK_ID"); task != "" {
		cfg.Owner.TaskID = task
	}
	if desc := os.Getenv("TRACKER_TASK_DESCRIPTION"); desc != "" {
		cfg.Owner.Description = desc
	}
	if dbPath := os.Getenv("TRACKER_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("TRACKER_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if interval := os.Getenv("TRACKER_ACTIVITY_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRACKER_ACTIVITY_INTERVAL: %w", err)
		}
		cfg.Tracker.ActivityInterval = d
	}
	if threshold := os.Getenv("TRACKER_IDLE_TICK_THRESHOLD"); threshold != "" {
		n, err := strconv.Atoi(threshold)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TRACKER_IDLE_TICK_THRESHOLD: %w", err)
		}
		cfg.Tracker.IdleTickThreshold = n
	}

	return cfg, nil
}

// Validate checks that tunables are usable.
func (c Config) Validate() error {
	if c.Tracker.ActivityInterval <= 0 {
		return fmt.Errorf("activity interval must be positive, got %v", c.Tracker.ActivityInterval)
	}
	if c.Tracker.ScreenshotInterval <= 0 {
		return fmt.Errorf("screenshot interval must be positive, got %v", c.Tracker.ScreenshotInterval)
	}
	if c.Tracker.IdleTickThreshold < 0 {
		return fmt.Errorf("idle tick threshold must not be negative, got %d", c.Tracker.IdleTickThreshold)
	}
	if c.Tracker.ReplayAttemptCap < 1 {
		return fmt.Errorf("replay attempt cap must be at least 1, got %d", c.Tracker.ReplayAttemptCap)
	}
	if c.Tracker.RetainedSessions < 1 {
		return fmt.Errorf("retained sessions must be at least 1, got %d", c.Tracker.RetainedSessions)
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func defaultScreenshotDir() string {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "screenshots"
	}
	return filepath.Join(cache, "tracker", "screenshots")
}
