package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	driverSQLite  = "sqlite"
	driverMongoDB = "mongodb"
)

// S3Config configures access to manifests stored in S3 compatible buckets.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	Secure    bool   `yaml:"secure"`
}

// Config holds the settings of a run. Values come from an optional YAML file,
// then ANANSI_* environment variables, then command line flags.
type Config struct {
	Driver           string        `yaml:"driver"`
	URI              string        `yaml:"uri"`
	Database         string        `yaml:"database"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	AuthSource       string        `yaml:"authSource"`
	CollectionPrefix string        `yaml:"collectionPrefix"`
	Timeout          time.Duration `yaml:"timeout"`
	LogLevel         string        `yaml:"logLevel"`
	MetricsFile      string        `yaml:"metricsFile"`
	Stats            bool          `yaml:"stats"`
	NoEnvExpansion   bool          `yaml:"noEnvExpansion"`
	S3               S3Config      `yaml:"s3"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Driver:   driverSQLite,
		Timeout:  2 * time.Minute,
		LogLevel: "warn",
		S3:       S3Config{Secure: true},
	}
}

// LoadConfigFile reads a YAML config file over the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from ANANSI_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	texts := map[string]*string{
		"ANANSI_DRIVER":            &c.Driver,
		"ANANSI_DB_URI":            &c.URI,
		"ANANSI_DB_NAME":           &c.Database,
		"ANANSI_DB_USERNAME":       &c.Username,
		"ANANSI_DB_PASSWORD":       &c.Password,
		"ANANSI_DB_AUTH_SOURCE":    &c.AuthSource,
		"ANANSI_COLLECTION_PREFIX": &c.CollectionPrefix,
		"ANANSI_LOG_LEVEL":         &c.LogLevel,
		"ANANSI_METRICS_FILE":      &c.MetricsFile,
		"ANANSI_S3_ENDPOINT":       &c.S3.Endpoint,
		"ANANSI_S3_ACCESS_KEY":     &c.S3.AccessKey,
		"ANANSI_S3_SECRET_KEY":     &c.S3.SecretKey,
		"ANANSI_S3_REGION":         &c.S3.Region,
	}
	for name, target := range texts {
		if v, ok := lookup(name); ok && v != "" {
			*target = v
		}
	}

	bools := map[string]*bool{
		"ANANSI_STATS":            &c.Stats,
		"ANANSI_NO_ENV_EXPANSION": &c.NoEnvExpansion,
		"ANANSI_S3_SECURE":        &c.S3.Secure,
	}
	for name, target := range bools {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: invalid boolean %q", name, v)
			}
			*target = b
		}
	}

	if v, ok := lookup("ANANSI_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ANANSI_TIMEOUT: invalid duration %q", v)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the settings needed to connect.
func (c *Config) Validate() error {
	switch c.Driver {
	case driverSQLite, driverMongoDB:
	default:
		return fmt.Errorf("unknown driver %q: expected %s or %s", c.Driver, driverSQLite, driverMongoDB)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// ResolveURI returns the connection string, defaulting per driver.
func (c *Config) ResolveURI() string {
	if c.URI != "" {
		return c.URI
	}
	if c.Driver == driverMongoDB {
		return "mongodb://localhost:27017"
	}
	return "bootstrap.db"
}

// ResolveDatabase returns the database name, falling back to the one the
// manifest declares.
func (c *Config) ResolveDatabase(m *manifest.Manifest) string {
	if c.Database != "" {
		return c.Database
	}
	if m != nil {
		return m.Database
	}
	return ""
}

// SourceOptions returns the options used to open manifests.
func (c *Config) SourceOptions(lookup func(string) (string, bool)) *manifest.SourceOptions {
	opts := &manifest.SourceOptions{DisableEnvExpansion: c.NoEnvExpansion, Lookup: lookup}
	if c.S3.Endpoint != "" {
		opts.S3 = &manifest.S3Options{
			Endpoint:  c.S3.Endpoint,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			Region:    c.S3.Region,
			Secure:    c.S3.Secure,
		}
	}
	return opts
}

// configFlags are the flags shared by the commands that read a Config.
type configFlags struct {
	configPath       string
	driver           string
	uri              string
	database         string
	username         string
	password         string
	authSource       string
	collectionPrefix string
	timeout          time.Duration
	logLevel         string
	metricsFile      string
	stats            bool
	noEnv            bool
	s3Endpoint       string
}

func bindConfigFlags(fs *flag.FlagSet, withConnection bool) *configFlags {
	f := &configFlags{}
	defaults := DefaultConfig()
	fs.StringVar(&f.configPath, "config", "", "YAML config file (env ANANSI_CONFIG)")
	fs.BoolVar(&f.noEnv, "no-env", false, "Do not expand ${VAR} references in the manifest")
	fs.StringVar(&f.s3Endpoint, "s3-endpoint", "", "Endpoint of the S3 service holding s3:// manifests")
	fs.StringVar(&f.logLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn or error")
	if !withConnection {
		return f
	}
	fs.StringVar(&f.driver, "driver", defaults.Driver, "Database driver: sqlite or mongodb")
	fs.StringVar(&f.uri, "uri", "", "Connection string, or the database file for sqlite")
	fs.StringVar(&f.database, "database", "", "Database name (default: the manifest database)")
	fs.StringVar(&f.username, "username", "", "Database user")
	fs.StringVar(&f.password, "password", "", "Database password (prefer ANANSI_DB_PASSWORD)")
	fs.StringVar(&f.authSource, "auth-source", "", "Authentication database (mongodb)")
	fs.StringVar(&f.collectionPrefix, "prefix", "", "Prefix added to every collection name")
	fs.DurationVar(&f.timeout, "timeout", defaults.Timeout, "Time limit of the whole run")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	fs.BoolVar(&f.stats, "stats", false, "Report collection and index sizes")
	return f
}

// resolveConfig builds the Config of a run: defaults, the config file, the
// environment, then the flags the operator set explicitly.
func resolveConfig(fs *flag.FlagSet, f *configFlags, lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()

	path := f.configPath
	if path == "" {
		path, _ = lookup("ANANSI_CONFIG")
	}
	if path != "" {
		loaded, err := LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	set := func(name string, apply func()) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			apply()
		}
	}
	set("driver", func() { cfg.Driver = f.driver })
	set("uri", func() { cfg.URI = f.uri })
	set("database", func() { cfg.Database = f.database })
	set("username", func() { cfg.Username = f.username })
	set("password", func() { cfg.Password = f.password })
	set("auth-source", func() { cfg.AuthSource = f.authSource })
	set("prefix", func() { cfg.CollectionPrefix = f.collectionPrefix })
	set("timeout", func() { cfg.Timeout = f.timeout })
	set("log-level", func() { cfg.LogLevel = f.logLevel })
	set("metrics-file", func() { cfg.MetricsFile = f.metricsFile })
	set("stats", func() { cfg.Stats = f.stats })
	set("no-env", func() { cfg.NoEnvExpansion = f.noEnv })
	set("s3-endpoint", func() { cfg.S3.Endpoint = f.s3Endpoint })

	return cfg, cfg.Validate()
}
