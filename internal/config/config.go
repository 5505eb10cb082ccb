// Package config loads labcore settings from defaults, an optional YAML file,
// an optional .env file and LABCORE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LABCORE_"

// Config is the full runtime configuration.
type Config struct {
	Storage Storage `yaml:"storage"`
	Blob    Blob    `yaml:"blob"`
	Engine  Engine  `yaml:"engine"`
	Log     Log     `yaml:"log"`
	HTTP    HTTP    `yaml:"http"`
	Metrics Metrics `yaml:"metrics"`
}

// Storage selects the persistent store backing the ledger.
type Storage struct {
	Driver      string `yaml:"driver"` // memory|sqlite|postgres
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Blob selects the object store used for document archives.
type Blob struct {
	Driver string `yaml:"driver"` // fs|s3|memory
	FSRoot string `yaml:"fs_root"`
	S3     S3     `yaml:"s3"`
}

// S3 holds S3 or MinIO connection settings.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Engine tunes experiment evaluation and alerting.
type Engine struct {
	Tolerance       float64 `yaml:"tolerance"`
	ExpiryAlertDays int     `yaml:"expiry_alert_days"`
}

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Metrics selects the metrics backend and optional trace output.
type Metrics struct {
	Backend   string `yaml:"backend"` // prometheus|expvar|none
	TraceFile string `yaml:"trace_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Storage: Storage{Driver: "sqlite", SQLitePath: "labcore.db"},
		Blob:    Blob{Driver: "fs", FSRoot: "archive", S3: S3{Region: "us-east-1"}},
		Engine:  Engine{Tolerance: 1e-9, ExpiryAlertDays: 30},
		Log:     Log{Level: "info", Format: "text"},
		HTTP:    HTTP{Addr: ":8080"},
		Metrics: Metrics{Backend: "prometheus"},
	}
}

// LoadOptions names the optional files consulted by Load.
type LoadOptions struct {
	// File is a YAML config file. A named file that does not exist is an error.
	File string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
}

// Load resolves the configuration. Variables already present in the process
// environment win over values from EnvFile.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", opts.File, err)
		}
	}
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"STORAGE_DRIVER":            &cfg.Storage.Driver,
		"SQLITE_PATH":               &cfg.Storage.SQLitePath,
		"POSTGRES_DSN":              &cfg.Storage.PostgresDSN,
		"BLOB_DRIVER":               &cfg.Blob.Driver,
		"BLOB_FS_ROOT":              &cfg.Blob.FSRoot,
		"BLOB_S3_BUCKET":            &cfg.Blob.S3.Bucket,
		"BLOB_S3_REGION":            &cfg.Blob.S3.Region,
		"BLOB_S3_ENDPOINT":          &cfg.Blob.S3.Endpoint,
		"BLOB_S3_ACCESS_KEY_ID":     &cfg.Blob.S3.AccessKeyID,
		"BLOB_S3_SECRET_ACCESS_KEY": &cfg.Blob.S3.SecretAccessKey,
		"LOG_LEVEL":                 &cfg.Log.Level,
		"LOG_FORMAT":                &cfg.Log.Format,
		"HTTP_ADDR":                 &cfg.HTTP.Addr,
		"METRICS_BACKEND":           &cfg.Metrics.Backend,
		"TRACE_FILE":                &cfg.Metrics.TraceFile,
	}
	for key, target := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*target = strings.TrimSpace(v)
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "BLOB_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sBLOB_S3_PATH_STYLE: %w", EnvPrefix, err)
		}
		cfg.Blob.S3.PathStyle = b
	}
	if v, ok := os.LookupEnv(EnvPrefix + "ENGINE_TOLERANCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%sENGINE_TOLERANCE: %w", EnvPrefix, err)
		}
		cfg.Engine.Tolerance = f
	}
	if v, ok := os.LookupEnv(EnvPrefix + "EXPIRY_ALERT_DAYS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sEXPIRY_ALERT_DAYS: %w", EnvPrefix, err)
		}
		cfg.Engine.ExpiryAlertDays = n
	}
	return nil
}

// Validate rejects unknown drivers and out-of-range engine settings.
func (c Config) Validate() error {
	if err := oneOf("storage.driver", c.Storage.Driver, "memory", "sqlite", "postgres"); err != nil {
		return err
	}
	if err := oneOf("blob.driver", c.Blob.Driver, "fs", "s3", "memory"); err != nil {
		return err
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return fmt.Errorf("blob.s3.bucket is required for the s3 driver")
	}
	if err := oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "error"); err != nil {
		return err
	}
	if err := oneOf("log.format", strings.ToLower(c.Log.Format), "text", "json"); err != nil {
		return err
	}
	if err := oneOf("metrics.backend", c.Metrics.Backend, "prometheus", "expvar", "none"); err != nil {
		return err
	}
	if c.Engine.Tolerance < 0 {
		return fmt.Errorf("engine.tolerance must not be negative")
	}
	if c.Engine.ExpiryAlertDays < 0 {
		return fmt.Errorf("engine.expiry_alert_days must not be negative")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported value %q (want one of %s)", field, value, strings.Join(allowed, ", "))
}
