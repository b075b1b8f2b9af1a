// Package config loads and validates the orchestrator's configuration from
// warband.yaml: server binding, routes directory, harness pacing, admin
// channel, character database, events, retention, Slack, and metrics.
// Missing files fall back to built-in defaults so a bare checkout can run
// in simulator mode with no configuration at all.
package config

import "time"

// Config is the resolved, validated configuration returned by Initialize.
type Config struct {
	configDir string

	Server    *ServerConfig
	Routes    *RoutesConfig
	Harness   *HarnessConfig
	Admin     *AdminConfig
	Database  *DatabaseConfig
	Events    *EventsConfig
	Retention *RetentionConfig
	Slack     *SlackConfig
	Metrics   *MetricsConfig

	// Factory selects the bot client implementation: "sim" runs the
	// in-memory simulator (no game server needed).
	Factory string
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// ServerConfig holds HTTP server bind settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RoutesConfig holds route file location and parse-cache settings.
type RoutesConfig struct {
	Dir       string
	CacheSize int
	CacheTTL  time.Duration
}

// HarnessConfig holds fleet pacing knobs and the default timeouts applied
// when a route's harness leaves its own unset.
type HarnessConfig struct {
	TickInterval        time.Duration
	StartStagger        time.Duration
	SettleGrace         time.Duration
	SetupTimeoutSeconds int
	TestTimeoutSeconds  int
}

// AdminConfig holds admin control-channel settings.
type AdminConfig struct {
	Enabled     bool
	Addr        string
	Username    string
	Password    string
	PoolSize    int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// DatabaseConfig holds character database settings for the snapshot store.
type DatabaseConfig struct {
	Enabled  bool
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`

	// RequiresOfflineForRestore controls whether snapshot restore performs
	// the logout/restore/login cycle. Depends on the game server build.
	RequiresOfflineForRestore bool
}

// EventsConfig holds event hub settings.
type EventsConfig struct {
	// BufferSize is the per-channel catch-up ring buffer capacity.
	BufferSize int `yaml:"buffer_size"`
}

// RetentionConfig controls completed-run pruning and report file cleanup.
type RetentionConfig struct {
	// Window is the age past which completed runs and report files are
	// pruned.
	Window time.Duration
	// KeepCount is the floor of completed runs kept regardless of age.
	KeepCount int
	// Interval is how often the cleanup loop runs.
	Interval time.Duration
	// ReportsDir is where report files are written and pruned.
	ReportsDir string
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Enabled      bool
	TokenEnv     string
	Channel      string
	DashboardURL string
}

// MetricsConfig holds Prometheus exposure settings.
type MetricsConfig struct {
	Enabled bool
}
