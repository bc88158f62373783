package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DBPath  string        `mapstructure:"db_path"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	Timer   TimerConfig   `mapstructure:"timer"`
	Tracker TrackerConfig `mapstructure:"tracker"`
	Archive ArchiveConfig `mapstructure:"archive"`

	// File is the config file that was read or created.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type TimerConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
	AutoChain  bool          `mapstructure:"auto_chain"`
}

type TrackerConfig struct {
	DeletePolicy string `mapstructure:"delete_policy"`
}

type ArchiveConfig struct {
	Schedule string `mapstructure:"schedule"`
	CatchUp  bool   `mapstructure:"catch_up"`
	Location string `mapstructure:"location"`
}

// Dir returns ~/.config/pulse
func Dir() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "pulse"), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("db_path", filepath.Join(dir, "pulse.db"))
	v.SetDefault("log.file", filepath.Join(dir, "pulse.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("store.poll_interval", time.Second)
	v.SetDefault("store.flush_interval", time.Duration(0))
	v.SetDefault("store.max_retries", 8)
	v.SetDefault("timer.stale_after", time.Hour)
	v.SetDefault("timer.auto_chain", false)
	v.SetDefault("tracker.delete_policy", "cascade")
	v.SetDefault("archive.schedule", "55 23 * * *")
	v.SetDefault("archive.catch_up", true)
	v.SetDefault("archive.location", "Local")
}

// Load reads the YAML config at path, or ~/.config/pulse/pulse.yml when path
// is empty. A missing file is created with the defaults. Environment
// variables prefixed with PULSE_ override the file, e.g. PULSE_LOG_LEVEL.
func Load(path string) (Config, error) {
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return Config{}, fmt.Errorf("locate config directory: %w", err)
		}
		path = filepath.Join(dir, "pulse.yml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Config{}, fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, filepath.Dir(path))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return Config{}, fmt.Errorf("create config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	if c.Store.PollInterval < 0 || c.Store.FlushInterval < 0 {
		return errors.New("config: store intervals must not be negative")
	}
	if c.Store.MaxRetries < 0 {
		return errors.New("config: store.max_retries must not be negative")
	}
	if c.Timer.StaleAfter <= 0 {
		return errors.New("config: timer.stale_after must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves archive.location; "Local" and "" mean the system zone.
func (c Config) Location() (*time.Location, error) {
	name := c.Archive.Location
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: archive.location: %w", err)
	}
	return loc, nil
}
