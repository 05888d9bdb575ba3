package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Config struct {
	ServerAddress   string
	Environment     string
	DefaultCurrency string
	Database        DatabaseConfig
	Migration       MigrationConfig
	Matching        MatchingConfig
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Params   string
	// Path is the database file used by the sqlite driver.
	Path string
}

type MigrationConfig struct {
	// Dir overrides the embedded migrations with a file source when set.
	Dir string
}

type MatchingConfig struct {
	MinScore       float64
	AmbiguityRatio float64
	Timezone       string
}

func setDefaults() {
	viper.SetDefault("SERVER_ADDRESS", ":8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DEFAULT_CURRENCY", "MXN")
	viper.SetDefault("DB_DRIVER", DriverMySQL)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 3306)
	viper.SetDefault("DB_NAME", "sales_reconciliation")
	viper.SetDefault("DB_PARAMS", "parseTime=true&multiStatements=true")
	viper.SetDefault("DB_PATH", "reconciliation.db")
	viper.SetDefault("MATCH_MIN_SCORE", 20.0)
	viper.SetDefault("MATCH_AMBIGUITY_RATIO", 0.7)
	viper.SetDefault("BUSINESS_TIMEZONE", "UTC")
}

// LoadConfig reads .env when present and lets the environment override it.
func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{
		ServerAddress:   viper.GetString("SERVER_ADDRESS"),
		Environment:     viper.GetString("ENVIRONMENT"),
		DefaultCurrency: viper.GetString("DEFAULT_CURRENCY"),
		Database: DatabaseConfig{
			Driver:   viper.GetString("DB_DRIVER"),
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Name:     viper.GetString("DB_NAME"),
			Params:   viper.GetString("DB_PARAMS"),
			Path:     viper.GetString("DB_PATH"),
		},
		Migration: MigrationConfig{
			Dir: viper.GetString("MIGRATION_DIR"),
		},
		Matching: MatchingConfig{
			MinScore:       viper.GetFloat64("MATCH_MIN_SCORE"),
			AmbiguityRatio: viper.GetFloat64("MATCH_AMBIGUITY_RATIO"),
			Timezone:       viper.GetString("BUSINESS_TIMEZONE"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Matching.MinScore < 0 {
		return fmt.Errorf("MATCH_MIN_SCORE must not be negative")
	}
	if c.Matching.AmbiguityRatio <= 0 || c.Matching.AmbiguityRatio > 1 {
		return fmt.Errorf("MATCH_AMBIGUITY_RATIO must be in (0, 1]")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the time zone in which calendar days are compared.
func (c *Config) Location() (*time.Location, error) {
	if c.Matching.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Matching.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", c.Matching.Timezone, err)
	}
	return loc, nil
}

// GetDSN returns the driver specific data source name
func (c *Config) GetDSN() string {
	if c.Database.Driver == DriverSQLite {
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite", c.Database.Path)
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}

// GetMigrationDBURL returns the database URL for migrations
func (c *Config) GetMigrationDBURL() string {
	if c.Database.Driver == DriverSQLite {
		return "sqlite://" + c.Database.Path
	}
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Params,
	)
}
