// Package config loads settings from .env, an optional config file and the
// environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/valeevte/valora/internal/database"
	"github.com/valeevte/valora/internal/logging"
	"github.com/valeevte/valora/internal/scheduler"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Port    string
	GinMode string
	WebDir  string
	// Store selects the backend: memory or postgres.
	Store string
	DB    database.DBConfig

	Scheduler scheduler.Config
	Log       logging.Config

	// Location is the zone whose midnight starts the dashboard day.
	Location *time.Location
	// Seed feeds the price generator; 0 seeds from the clock.
	Seed int64

	ShutdownTimeout time.Duration
}

// Load reads .env when present (missing is not an error), then configFile
// when not empty, then the environment.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("web_dir", "")
	v.SetDefault("store", StoreMemory)

	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.connect_timeout", "5s")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.run_on_start", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/valora.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.with_caller", false)

	v.SetDefault("timezone", "UTC")
	v.SetDefault("seed", 0)
	v.SetDefault("shutdown_timeout", "15s")
}

func fromViper(v *viper.Viper) (*Config, error) {
	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	cfg := &Config{
		Port:    v.GetString("port"),
		GinMode: v.GetString("gin_mode"),
		WebDir:  v.GetString("web_dir"),
		Store:   strings.ToLower(v.GetString("store")),
		DB: database.DBConfig{
			User:           v.GetString("db.user"),
			Password:       v.GetString("db.password"),
			Host:           v.GetString("db.host"),
			Port:           v.GetString("db.port"),
			DBName:         v.GetString("db.name"),
			SSLMode:        v.GetString("db.sslmode"),
			MaxConns:       v.GetInt32("db.max_conns"),
			ConnectTimeout: v.GetDuration("db.connect_timeout"),
		},
		Scheduler: scheduler.Config{
			Interval:   v.GetDuration("scheduler.interval"),
			Workers:    v.GetInt("scheduler.workers"),
			RunOnStart: v.GetBool("scheduler.run_on_start"),
		},
		Log: logging.Config{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			FilePath:   v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
			WithCaller: v.GetBool("log.with_caller"),
		},
		Location:        loc,
		Seed:            v.GetInt64("seed"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port must not be empty"))
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DB.User == "" || c.DB.Host == "" || c.DB.Port == "" || c.DB.DBName == "" {
			errs = append(errs, database.ErrIncompleteConfig)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Scheduler.Interval < 0 {
		errs = append(errs, errors.New("scheduler interval must not be negative"))
	}
	return errors.Join(errs...)
}
