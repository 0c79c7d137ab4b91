package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lokasan/atom-robots/internal/env"
	"github.com/lokasan/atom-robots/internal/ledger/factory"
	"github.com/lokasan/atom-robots/internal/logger"
	tlsx "github.com/lokasan/atom-robots/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. ATOM_ROBOTS_STORE_DSN.
const EnvPrefix = "ATOM_ROBOTS"

// DSNEnv is the variable robots read the ledger DSN from.
const DSNEnv = EnvPrefix + "_STORE_DSN"

type Config struct {
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Store   StoreConfig   `toml:"store" mapstructure:"store"`
	Robot   RobotConfig   `toml:"robot" mapstructure:"robot"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`

	// dir is the directory of the loaded file; relative paths resolve against it.
	dir string
}

type ServerConfig struct {
	Listen         string        `toml:"listen" mapstructure:"listen"`
	BasePath       string        `toml:"base_path" mapstructure:"base_path"`
	RequestTimeout time.Duration `toml:"request_timeout" mapstructure:"request_timeout"`
	TLSCertFile    string        `toml:"tls_cert_file" mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `toml:"tls_key_file" mapstructure:"tls_key_file"`
	// TLSDir holds tls.crt/tls.key when the explicit files are not set.
	TLSDir          string `toml:"tls_dir" mapstructure:"tls_dir"`
	TLSAutoGenerate bool   `toml:"tls_auto_generate" mapstructure:"tls_auto_generate"`
	TLSMinVersion   string `toml:"tls_min_version" mapstructure:"tls_min_version"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

type RobotConfig struct {
	// Command is the counter executable; empty re-executes this binary's robot subcommand.
	Command   string        `toml:"command" mapstructure:"command"`
	Args      []string      `toml:"args" mapstructure:"args"`
	Interval  time.Duration `toml:"interval" mapstructure:"interval"`
	StopDelay time.Duration `toml:"stop_delay" mapstructure:"stop_delay"`
	LogDir    string        `toml:"log_dir" mapstructure:"log_dir"`
	Env       []string      `toml:"env" mapstructure:"env"`
	EnvFiles  []string      `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv  bool          `toml:"use_os_env" mapstructure:"use_os_env"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	Color      bool   `toml:"color" mapstructure:"color"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Path    string `toml:"path" mapstructure:"path"`
}

// HistoryConfig lists history sink DSNs (clickhouse://, postgres://, sqlite://).
type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", "127.0.0.1:8000")
	v.SetDefault("server.base_path", "")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_dir", "")
	v.SetDefault("server.tls_auto_generate", false)
	v.SetDefault("server.tls_min_version", "1.2")
	v.SetDefault("store.dsn", "sqlite://robots.db")
	v.SetDefault("robot.command", "")
	v.SetDefault("robot.args", []string{})
	v.SetDefault("robot.interval", "1s")
	v.SetDefault("robot.stop_delay", "30ms")
	v.SetDefault("robot.log_dir", "")
	v.SetDefault("robot.env", []string{})
	v.SetDefault("robot.env_files", []string{})
	v.SetDefault("robot.use_os_env", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("history.sinks", []string{})
}

// Load reads a TOML file (optional: empty path means defaults only), applies
// ATOM_ROBOTS_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dir := ""
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		dir = filepath.Dir(abs)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.dir = dir
	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) resolvePaths() {
	if c.dir == "" {
		return
	}
	c.Store.DSN = c.sqliteDSN(c.Store.DSN)
	for i, s := range c.History.Sinks {
		c.History.Sinks[i] = c.sqliteDSN(s)
	}
	c.Robot.LogDir = c.abs(c.Robot.LogDir)
	c.Log.File = c.abs(c.Log.File)
	c.Server.TLSCertFile = c.abs(c.Server.TLSCertFile)
	c.Server.TLSKeyFile = c.abs(c.Server.TLSKeyFile)
	c.Server.TLSDir = c.abs(c.Server.TLSDir)
	for i, f := range c.Robot.EnvFiles {
		c.Robot.EnvFiles[i] = c.abs(f)
	}
}

// sqliteDSN anchors a relative sqlite path at the config directory.
func (c *Config) sqliteDSN(dsn string) string {
	p, ok := factory.SQLitePath(dsn)
	if !ok || p == ":memory:" || strings.HasPrefix(p, "file:") || filepath.IsAbs(p) {
		return dsn
	}
	return "sqlite://" + filepath.Join(c.dir, p)
}

func (c *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store.dsn must not be empty"))
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, errors.New("server.listen must not be empty"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	switch c.Server.TLSMinVersion {
	case "", "1.2", "1.3":
	default:
		errs = append(errs, fmt.Errorf("server.tls_min_version must be 1.2 or 1.3, got %q", c.Server.TLSMinVersion))
	}
	if c.Server.TLSAutoGenerate && c.Server.TLSDir == "" {
		errs = append(errs, errors.New("server.tls_auto_generate needs server.tls_dir"))
	}
	if c.Robot.StopDelay < 0 {
		errs = append(errs, errors.New("robot.stop_delay must not be negative"))
	}
	if c.Robot.Interval <= 0 {
		errs = append(errs, errors.New("robot.interval must be positive"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// TLSOptions maps the [server] tls_* settings onto tls.Options.
func (c *Config) TLSOptions() tlsx.Options {
	return tlsx.Options{
		CertFile:     c.Server.TLSCertFile,
		KeyFile:      c.Server.TLSKeyFile,
		Dir:          c.Server.TLSDir,
		AutoGenerate: c.Server.TLSAutoGenerate,
		MinVersion:   c.Server.TLSMinVersion,
	}
}

// LoggerConfig maps the [log] section onto logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Color:  c.Log.Color,
		File: logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// RobotOutput maps the robot log settings onto logger.OutputConfig.
func (c *Config) RobotOutput() logger.OutputConfig {
	return logger.OutputConfig{
		Dir:        c.Robot.LogDir,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// RobotEnv composes the robot environment: OS env (when enabled), env files
// in order, then the env list. The ledger DSN is always exported so robots
// can record their own duration on shutdown.
func (c *Config) RobotEnv() ([]string, error) {
	e := env.New()
	if c.Robot.UseOSEnv {
		e = env.FromOS()
	}
	for _, f := range c.Robot.EnvFiles {
		if err := e.LoadFile(f); err != nil {
			return nil, err
		}
	}
	e.Apply(c.Robot.Env)
	e.Set(DSNEnv, c.Store.DSN)
	return e.Environ(), nil
}
