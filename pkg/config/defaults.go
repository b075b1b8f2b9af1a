package config

import "time"

// Built-in defaults. Every section is usable without a config file; the
// loader merges user YAML over these.

// DefaultServerConfig returns the default HTTP bind settings.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{Host: "0.0.0.0", Port: 8080}
}

// DefaultRoutesConfig returns the default route location and cache settings.
func DefaultRoutesConfig() *RoutesConfig {
	return &RoutesConfig{
		Dir:       "./routes",
		CacheSize: 128,
		CacheTTL:  30 * time.Second,
	}
}

// DefaultHarnessConfig returns the default fleet pacing knobs.
func DefaultHarnessConfig() *HarnessConfig {
	return &HarnessConfig{
		TickInterval:        100 * time.Millisecond,
		StartStagger:        500 * time.Millisecond,
		SettleGrace:         2 * time.Second,
		SetupTimeoutSeconds: 120,
		TestTimeoutSeconds:  600,
	}
}

// DefaultAdminConfig returns the admin channel defaults (disabled).
func DefaultAdminConfig() *AdminConfig {
	return &AdminConfig{
		Enabled:     false,
		Addr:        "127.0.0.1:3443",
		Username:    "admin",
		PoolSize:    4,
		DialTimeout: 5 * time.Second,
		IOTimeout:   10 * time.Second,
	}
}

// DefaultDatabaseConfig returns the character database defaults (disabled).
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Enabled:                   false,
		Host:                      "localhost",
		Port:                      5432,
		User:                      "warband",
		Database:                  "characters",
		SSLMode:                   "disable",
		MaxOpenConns:              10,
		MaxIdleConns:              5,
		RequiresOfflineForRestore: true,
	}
}

// DefaultEventsConfig returns the event hub defaults.
func DefaultEventsConfig() *EventsConfig {
	return &EventsConfig{BufferSize: 256}
}

// DefaultRetentionConfig returns the retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Window:     24 * time.Hour,
		KeepCount:  50,
		Interval:   1 * time.Hour,
		ReportsDir: "./reports",
	}
}

// DefaultSlackConfig returns the Slack defaults (disabled).
func DefaultSlackConfig() *SlackConfig {
	return &SlackConfig{
		Enabled:      false,
		TokenEnv:     "SLACK_BOT_TOKEN",
		DashboardURL: "http://localhost:5173",
	}
}

// DefaultMetricsConfig returns the metrics defaults.
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{Enabled: true}
}

// DefaultFactory is the bot client implementation used when none is
// configured.
const DefaultFactory = "sim"
