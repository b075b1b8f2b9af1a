package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single configuration file the loader reads.
const configFileName = "warband.yaml"

// warbandYAML is the raw shape of warband.yaml. Durations are strings
// ("500ms", "2s") parsed during resolution; optional booleans are pointers
// so an explicit false is distinguishable from unset.
type warbandYAML struct {
	Server    *ServerConfig  `yaml:"server"`
	Routes    *routesYAML    `yaml:"routes"`
	Harness   *harnessYAML   `yaml:"harness"`
	Admin     *adminYAML     `yaml:"admin"`
	Database  *databaseYAML  `yaml:"database"`
	Events    *EventsConfig  `yaml:"events"`
	Retention *retentionYAML `yaml:"retention"`
	Slack     *slackYAML     `yaml:"slack"`
	Metrics   *metricsYAML   `yaml:"metrics"`
	Factory   string         `yaml:"factory"`
}

type routesYAML struct {
	Dir       string `yaml:"dir"`
	CacheSize int    `yaml:"cache_size"`
	CacheTTL  string `yaml:"cache_ttl"`
}

type harnessYAML struct {
	TickInterval        string `yaml:"tick_interval"`
	StartStagger        string `yaml:"start_stagger"`
	SettleGrace         string `yaml:"settle_grace"`
	SetupTimeoutSeconds int    `yaml:"setup_timeout_seconds"`
	TestTimeoutSeconds  int    `yaml:"test_timeout_seconds"`
}

type adminYAML struct {
	Enabled     *bool  `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	PoolSize    int    `yaml:"pool_size"`
	DialTimeout string `yaml:"dial_timeout"`
	IOTimeout   string `yaml:"io_timeout"`
}

type databaseYAML struct {
	Enabled                   *bool  `yaml:"enabled"`
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	User                      string `yaml:"user"`
	Password                  string `yaml:"password"`
	Database                  string `yaml:"database"`
	SSLMode                   string `yaml:"sslmode"`
	MaxOpenConns              int    `yaml:"max_open_conns"`
	MaxIdleConns              int    `yaml:"max_idle_conns"`
	RequiresOfflineForRestore *bool  `yaml:"requires_offline_for_restore"`
}

type retentionYAML struct {
	Window     string `yaml:"window"`
	KeepCount  *int   `yaml:"keep_count"`
	Interval   string `yaml:"interval"`
	ReportsDir string `yaml:"reports_dir"`
}

type slackYAML struct {
	Enabled      *bool  `yaml:"enabled"`
	TokenEnv     string `yaml:"token_env"`
	Channel      string `yaml:"channel"`
	DashboardURL string `yaml:"dashboard_url"`
}

type metricsYAML struct {
	Enabled *bool `yaml:"enabled"`
}

// Initialize loads, resolves, and validates configuration from
// configDir/warband.yaml. A missing file is not an error: every section has
// usable defaults, so a bare checkout runs in simulator mode.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	raw, err := loadYAML(configDir)
	if err != nil {
		return nil, NewLoadError(configFileName, err)
	}

	cfg, err := resolve(configDir, raw)
	if err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"routes_dir", cfg.Routes.Dir,
		"factory", cfg.Factory,
		"admin_enabled", cfg.Admin.Enabled,
		"database_enabled", cfg.Database.Enabled,
		"slack_enabled", cfg.Slack.Enabled)
	return cfg, nil
}

func loadYAML(configDir string) (*warbandYAML, error) {
	raw := &warbandYAML{}
	path := filepath.Join(configDir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No configuration file found, using defaults", "path", path)
			return raw, nil
		}
		return nil, err
	}

	data = ExpandEnv(data)

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return raw, nil
}

// resolve merges user YAML over the built-in defaults section by section.
func resolve(configDir string, raw *warbandYAML) (*Config, error) {
	server := DefaultServerConfig()
	if raw.Server != nil {
		if err := mergo.Merge(server, raw.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}

	events := DefaultEventsConfig()
	if raw.Events != nil {
		if err := mergo.Merge(events, raw.Events, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge events config: %w", err)
		}
	}

	cfg := &Config{
		configDir: configDir,
		Server:    server,
		Routes:    resolveRoutes(raw.Routes),
		Harness:   resolveHarness(raw.Harness),
		Admin:     resolveAdmin(raw.Admin),
		Database:  resolveDatabase(raw.Database),
		Events:    events,
		Retention: resolveRetention(raw.Retention),
		Slack:     resolveSlack(raw.Slack),
		Metrics:   resolveMetrics(raw.Metrics),
		Factory:   raw.Factory,
	}
	if cfg.Factory == "" {
		cfg.Factory = DefaultFactory
	}
	return cfg, nil
}

func resolveRoutes(y *routesYAML) *RoutesConfig {
	cfg := DefaultRoutesConfig()
	if y == nil {
		return cfg
	}
	if y.Dir != "" {
		cfg.Dir = y.Dir
	}
	if y.CacheSize > 0 {
		cfg.CacheSize = y.CacheSize
	}
	cfg.CacheTTL = parseDuration("routes", "cache_ttl", y.CacheTTL, cfg.CacheTTL)
	return cfg
}

func resolveHarness(y *harnessYAML) *HarnessConfig {
	cfg := DefaultHarnessConfig()
	if y == nil {
		return cfg
	}
	cfg.TickInterval = parseDuration("harness", "tick_interval", y.TickInterval, cfg.TickInterval)
	cfg.StartStagger = parseDuration("harness", "start_stagger", y.StartStagger, cfg.StartStagger)
	cfg.SettleGrace = parseDuration("harness", "settle_grace", y.SettleGrace, cfg.SettleGrace)
	if y.SetupTimeoutSeconds > 0 {
		cfg.SetupTimeoutSeconds = y.SetupTimeoutSeconds
	}
	if y.TestTimeoutSeconds > 0 {
		cfg.TestTimeoutSeconds = y.TestTimeoutSeconds
	}
	return cfg
}

func resolveAdmin(y *adminYAML) *AdminConfig {
	cfg := DefaultAdminConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if y.Addr != "" {
		cfg.Addr = y.Addr
	}
	if y.Username != "" {
		cfg.Username = y.Username
	}
	if y.Password != "" {
		cfg.Password = y.Password
	}
	if y.PoolSize > 0 {
		cfg.PoolSize = y.PoolSize
	}
	cfg.DialTimeout = parseDuration("admin", "dial_timeout", y.DialTimeout, cfg.DialTimeout)
	cfg.IOTimeout = parseDuration("admin", "io_timeout", y.IOTimeout, cfg.IOTimeout)
	return cfg
}

func resolveDatabase(y *databaseYAML) *DatabaseConfig {
	cfg := DefaultDatabaseConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if y.Host != "" {
		cfg.Host = y.Host
	}
	if y.Port > 0 {
		cfg.Port = y.Port
	}
	if y.User != "" {
		cfg.User = y.User
	}
	if y.Password != "" {
		cfg.Password = y.Password
	}
	if y.Database != "" {
		cfg.Database = y.Database
	}
	if y.SSLMode != "" {
		cfg.SSLMode = y.SSLMode
	}
	if y.MaxOpenConns > 0 {
		cfg.MaxOpenConns = y.MaxOpenConns
	}
	if y.MaxIdleConns > 0 {
		cfg.MaxIdleConns = y.MaxIdleConns
	}
	if y.RequiresOfflineForRestore != nil {
		cfg.RequiresOfflineForRestore = *y.RequiresOfflineForRestore
	}
	return cfg
}

func resolveRetention(y *retentionYAML) *RetentionConfig {
	cfg := DefaultRetentionConfig()
	if y == nil {
		return cfg
	}
	cfg.Window = parseDuration("retention", "window", y.Window, cfg.Window)
	cfg.Interval = parseDuration("retention", "interval", y.Interval, cfg.Interval)
	if y.KeepCount != nil && *y.KeepCount >= 0 {
		cfg.KeepCount = *y.KeepCount
	}
	if y.ReportsDir != "" {
		cfg.ReportsDir = y.ReportsDir
	}
	return cfg
}

func resolveSlack(y *slackYAML) *SlackConfig {
	cfg := DefaultSlackConfig()
	if y == nil {
		return cfg
	}
	if y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	if y.TokenEnv != "" {
		cfg.TokenEnv = y.TokenEnv
	}
	if y.Channel != "" {
		cfg.Channel = y.Channel
	}
	if y.DashboardURL != "" {
		cfg.DashboardURL = y.DashboardURL
	}
	return cfg
}

func resolveMetrics(y *metricsYAML) *MetricsConfig {
	cfg := DefaultMetricsConfig()
	if y != nil && y.Enabled != nil {
		cfg.Enabled = *y.Enabled
	}
	return cfg
}

// parseDuration parses a duration string, warning and keeping the default
// on a bad value. An empty string means unset.
func parseDuration(section, field, value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration in config, using default",
			"section", section, "field", field, "value", value, "default", def)
		return def
	}
	return d
}

// validate checks the resolved configuration, returning every problem at
// once.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Factory != "sim" && cfg.Factory != "wire" {
		errs = append(errs, NewValidationError("factory", "",
			fmt.Errorf("%w: %q (expected \"sim\" or \"wire\")", ErrInvalidValue, cfg.Factory)))
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, NewValidationError("server", "port",
			fmt.Errorf("%w: %d", ErrInvalidValue, cfg.Server.Port)))
	}
	if cfg.Routes.Dir == "" {
		errs = append(errs, NewValidationError("routes", "dir", ErrMissingRequiredField))
	}
	if cfg.Harness.SetupTimeoutSeconds <= 0 {
		errs = append(errs, NewValidationError("harness", "setup_timeout_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if cfg.Harness.TestTimeoutSeconds <= 0 {
		errs = append(errs, NewValidationError("harness", "test_timeout_seconds",
			fmt.Errorf("%w: must be positive", ErrInvalidValue)))
	}
	if cfg.Admin.Enabled {
		if cfg.Admin.Addr == "" {
			errs = append(errs, NewValidationError("admin", "addr", ErrMissingRequiredField))
		}
		if cfg.Admin.Username == "" {
			errs = append(errs, NewValidationError("admin", "username", ErrMissingRequiredField))
		}
		if cfg.Admin.Password == "" {
			errs = append(errs, NewValidationError("admin", "password", ErrMissingRequiredField))
		}
	}
	if cfg.Database.Enabled {
		if cfg.Database.Host == "" {
			errs = append(errs, NewValidationError("database", "host", ErrMissingRequiredField))
		}
		if cfg.Database.User == "" {
			errs = append(errs, NewValidationError("database", "user", ErrMissingRequiredField))
		}
		if cfg.Database.Database == "" {
			errs = append(errs, NewValidationError("database", "database", ErrMissingRequiredField))
		}
	}
	if cfg.Slack.Enabled && cfg.Slack.Channel == "" {
		errs = append(errs, NewValidationError("slack", "channel", ErrMissingRequiredField))
	}
	if cfg.Factory == "wire" && !cfg.Admin.Enabled {
		errs = append(errs, NewValidationError("factory", "",
			errors.New("the wire factory requires the admin channel to provision accounts")))
	}

	return errors.Join(errs...)
}
