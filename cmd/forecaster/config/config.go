// Package config provides configuration parsing and management for the forecaster.
//
// Values come from command-line flags, environment variables and an optional
// YAML file given with -config-file (or CONFIG_FILE). Precedence:
//  1. Command-line flags
//  2. Environment variables
//  3. YAML config file
//  4. Default values
//
// Example usage:
//
//	cfg, err := config.Load(os.Args[1:])
//	if err != nil { ... }
package config

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/HatiCode/wattcast/pkg/tls"
)

// Supported model and storage backends.
const (
	ModelXGBoost  = "xgboost"
	ModelBYOM     = "byom"
	ModelBaseline = "baseline"

	StorageMemory = "memory"
	StorageRedis  = "redis"
)

// Config holds all forecaster configuration.
type Config struct {
	ConfigFile string

	Listen     string
	GRPCListen string
	StaticDir  string
	CORSOrigin string
	Timezone   string
	LogFormat  string
	LogLevel   string
	TLS        tls.Config

	Model         string
	ModelName     string
	ModelPath     string
	BaseScore     string
	BYOMURL       string
	BYOMValuePath string
	BYOMTimeout   time.Duration

	HistoryCapacity int

	Storage       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration
	StaleAfter    time.Duration

	RecorderDSN string
}

// fileConfig mirrors Config for the YAML file. Zero values mean "not set".
type fileConfig struct {
	Listen     string `yaml:"listen"`
	GRPCListen string `yaml:"grpcListen"`
	StaticDir  string `yaml:"staticDir"`
	CORSOrigin string `yaml:"corsOrigin"`
	Timezone   string `yaml:"timezone"`
	LogFormat  string `yaml:"logFormat"`
	LogLevel   string `yaml:"logLevel"`

	TLS struct {
		Enabled  bool   `yaml:"enabled"`
		CertFile string `yaml:"certFile"`
		KeyFile  string `yaml:"keyFile"`
		CAFile   string `yaml:"caFile"`
	} `yaml:"tls"`

	Model struct {
		Type          string `yaml:"type"`
		Name          string `yaml:"name"`
		Path          string `yaml:"path"`
		BaseScore     string `yaml:"baseScore"`
		BYOMURL       string `yaml:"byomURL"`
		BYOMValuePath string `yaml:"byomValuePath"`
		BYOMTimeout   string `yaml:"byomTimeout"`
	} `yaml:"model"`

	HistoryCapacity int `yaml:"historyCapacity"`

	Storage struct {
		Backend       string `yaml:"backend"`
		RedisAddr     string `yaml:"redisAddr"`
		RedisPassword string `yaml:"redisPassword"`
		RedisDB       int    `yaml:"redisDB"`
		SnapshotTTL   string `yaml:"snapshotTTL"`
		StaleAfter    string `yaml:"staleAfter"`
	} `yaml:"storage"`

	RecorderDSN string `yaml:"recorderDSN"`
}

// defaults returns the built-in configuration.
func defaults() *Config {
	return &Config{
		Listen:          ":8000",
		CORSOrigin:      "*",
		Timezone:        "Local",
		LogFormat:       "text",
		LogLevel:        "info",
		Model:           ModelXGBoost,
		ModelName:       ModelXGBoost,
		ModelPath:       "models/xgboost_energy.json",
		BYOMValuePath:   "prediction",
		BYOMTimeout:     10 * time.Second,
		HistoryCapacity: 300,
		Storage:         StorageMemory,
		RedisAddr:       "localhost:6379",
		SnapshotTTL:     2 * time.Hour,
		StaleAfter:      time.Hour,
	}
}

// ParseFlags parses os.Args and exits on error.
func ParseFlags() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// Load builds a validated Config from args, the environment and the
// optional YAML file.
func Load(args []string) (*Config, error) {
	base := defaults()

	path := configFilePath(args)
	if path != "" {
		if err := base.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	fs := flag.NewFlagSet("forecaster", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigFile, "config-file", path, "Path to YAML config file")

	fs.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", base.Listen), "HTTP listen address")
	fs.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", base.GRPCListen), "gRPC health listen address (empty disables)")
	fs.StringVar(&cfg.StaticDir, "static-dir", getEnv("STATIC_DIR", base.StaticDir), "Directory served at / (empty disables)")
	fs.StringVar(&cfg.CORSOrigin, "cors-origin", getEnv("CORS_ORIGIN", base.CORSOrigin), "Access-Control-Allow-Origin value (empty disables CORS)")
	fs.StringVar(&cfg.Timezone, "timezone", getEnv("TIMEZONE", base.Timezone), "IANA zone for timestamps without offset and for the current hour")

	fs.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", base.LogFormat), "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", base.LogLevel), "Log level: debug, info, warn, error")

	fs.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", base.TLS.Enabled), "Enable mTLS for the HTTP server and BYOM client")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", base.TLS.CertFile), "TLS certificate file")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", base.TLS.KeyFile), "TLS private key file")
	fs.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", base.TLS.CAFile), "TLS CA certificate file")

	fs.StringVar(&cfg.Model, "model", getEnv("MODEL", base.Model), "Model backend: xgboost, byom or baseline")
	fs.StringVar(&cfg.ModelName, "model-name", getEnv("MODEL_NAME", base.ModelName), "Model identifier reported to clients")
	fs.StringVar(&cfg.ModelPath, "model-path", getEnv("MODEL_PATH", base.ModelPath), "XGBoost JSON dump path")
	fs.StringVar(&cfg.BaseScore, "model-base-score", getEnv("MODEL_BASE_SCORE", base.BaseScore), "XGBoost base score (required for a raw tree dump, overrides the file's base_score)")
	fs.StringVar(&cfg.BYOMURL, "byom-url", getEnv("BYOM_URL", base.BYOMURL), "BYOM predict URL (required when model=byom)")
	fs.StringVar(&cfg.BYOMValuePath, "byom-value-path", getEnv("BYOM_VALUE_PATH", base.BYOMValuePath), "gjson path of the prediction in BYOM responses")
	fs.DurationVar(&cfg.BYOMTimeout, "byom-timeout", getEnvDuration("BYOM_TIMEOUT", base.BYOMTimeout), "BYOM request timeout")

	fs.IntVar(&cfg.HistoryCapacity, "history-capacity", getEnvInt("HISTORY_CAPACITY", base.HistoryCapacity), "Usage history capacity")

	fs.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", base.Storage), "Snapshot storage backend: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", base.RedisAddr), "Redis server address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", base.RedisPassword), "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", base.RedisDB), "Redis database number")
	fs.DurationVar(&cfg.SnapshotTTL, "snapshot-ttl", getEnvDuration("SNAPSHOT_TTL", base.SnapshotTTL), "Forecast snapshot TTL")
	fs.DurationVar(&cfg.StaleAfter, "stale-after", getEnvDuration("STALE_AFTER", base.StaleAfter), "Age after which a snapshot is flagged stale")

	fs.StringVar(&cfg.RecorderDSN, "recorder-dsn", getEnv("RECORDER_DSN", base.RecorderDSN), "Prediction journal DSN: sqlite path or postgres:// URL (empty disables)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address cannot be empty")
	}

	switch c.Model {
	case ModelXGBoost:
		if c.ModelPath == "" {
			return errors.New("model path is required when model=xgboost")
		}
		if _, _, err := c.ModelBaseScore(); err != nil {
			return err
		}
	case ModelBYOM:
		if c.BYOMURL == "" {
			return errors.New("byom url is required when model=byom")
		}
		if c.BYOMTimeout <= 0 {
			return fmt.Errorf("byom timeout must be > 0, got %v", c.BYOMTimeout)
		}
	case ModelBaseline:
	default:
		return fmt.Errorf("invalid model %q (must be xgboost, byom or baseline)", c.Model)
	}

	if c.ModelName == "" {
		c.ModelName = c.Model
	}

	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be > 0, got %d", c.HistoryCapacity)
	}

	switch c.Storage {
	case StorageMemory:
	case StorageRedis:
		if c.RedisAddr == "" {
			return errors.New("redis address is required when storage=redis")
		}
	default:
		return fmt.Errorf("invalid storage %q (must be memory or redis)", c.Storage)
	}

	if c.SnapshotTTL < 0 {
		return fmt.Errorf("snapshot ttl cannot be negative, got %v", c.SnapshotTTL)
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("stale-after must be > 0, got %v", c.StaleAfter)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", c.LogFormat)
	}

	return c.TLS.Validate()
}

// ModelBaseScore parses BaseScore. ok is false when it is not set.
func (c *Config) ModelBaseScore() (v float64, ok bool, err error) {
	if c.BaseScore == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(c.BaseScore, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("invalid model base score %q", c.BaseScore)
	}
	return v, true, nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// configFilePath finds -config-file in args before the full flag set is
// parsed, falling back to CONFIG_FILE.
func configFilePath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name != "config-file" || !strings.HasPrefix(arg, "-") {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return getEnv("CONFIG_FILE", "")
}

// applyFile overlays non-zero values from the YAML file at path.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f fileConfig
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Listen, f.Listen)
	setString(&c.GRPCListen, f.GRPCListen)
	setString(&c.StaticDir, f.StaticDir)
	setString(&c.CORSOrigin, f.CORSOrigin)
	setString(&c.Timezone, f.Timezone)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.LogLevel, f.LogLevel)

	if f.TLS.Enabled {
		c.TLS.Enabled = true
	}
	setString(&c.TLS.CertFile, f.TLS.CertFile)
	setString(&c.TLS.KeyFile, f.TLS.KeyFile)
	setString(&c.TLS.CAFile, f.TLS.CAFile)

	setString(&c.Model, f.Model.Type)
	setString(&c.ModelName, f.Model.Name)
	setString(&c.ModelPath, f.Model.Path)
	setString(&c.BaseScore, f.Model.BaseScore)
	setString(&c.BYOMURL, f.Model.BYOMURL)
	setString(&c.BYOMValuePath, f.Model.BYOMValuePath)
	if err := setDuration(&c.BYOMTimeout, f.Model.BYOMTimeout, "model.byomTimeout"); err != nil {
		return err
	}

	if f.HistoryCapacity != 0 {
		c.HistoryCapacity = f.HistoryCapacity
	}

	setString(&c.Storage, f.Storage.Backend)
	setString(&c.RedisAddr, f.Storage.RedisAddr)
	setString(&c.RedisPassword, f.Storage.RedisPassword)
	if f.Storage.RedisDB != 0 {
		c.RedisDB = f.Storage.RedisDB
	}
	if err := setDuration(&c.SnapshotTTL, f.Storage.SnapshotTTL, "storage.snapshotTTL"); err != nil {
		return err
	}
	if err := setDuration(&c.StaleAfter, f.Storage.StaleAfter, "storage.staleAfter"); err != nil {
		return err
	}

	setString(&c.RecorderDSN, f.RecorderDSN)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, field string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config file: %s: %w", field, err)
	}
	*dst = d
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
