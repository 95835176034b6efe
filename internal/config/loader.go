package config

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/metrogrid/cityql/internal/db"
)

// Config is the full server configuration.
type Config struct {
	DB db.Config

	ServerAddr     string
	LogLevel       string
	MigrationsPath string

	// DefaultCARTOAccount seeds the third-party account reference in new
	// scope configuration. Passed explicitly into provisioning, never read
	// from process-wide state.
	DefaultCARTOAccount string

	// LookbackHours bounds the "latest row per entity" window for
	// aggregated variables when the request carries no override.
	LookbackHours int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:             db.DefaultConfig(),
		ServerAddr:     ":8080",
		LogLevel:       "info",
		MigrationsPath: "./migrations",
		LookbackHours:  48,
	}
}

// Load reads config.yaml from configPath with environment overrides
// (CITYQL_DATABASE_HOST, CITYQL_SERVER_ADDR, ...), falling back to defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = "."
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("CITYQL")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("log.level")
	v.BindEnv("migrations.path")
	v.BindEnv("carto.account")
	v.BindEnv("lastdata.hours")

	if err := v.ReadInConfig(); err != nil {
		logrus.Debug("no config.yaml found, using defaults and env vars")
	} else {
		logrus.WithField("file", v.ConfigFileUsed()).Debug("loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.ServerAddr = v.GetString("server.addr")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("migrations.path") {
		cfg.MigrationsPath = v.GetString("migrations.path")
	}
	if v.IsSet("carto.account") {
		cfg.DefaultCARTOAccount = v.GetString("carto.account")
	}
	if v.IsSet("lastdata.hours") {
		cfg.LookbackHours = v.GetInt("lastdata.hours")
	}

	return cfg, nil
}
