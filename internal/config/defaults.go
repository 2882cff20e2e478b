package config

const (
	defaultBaseURL              = "https://api.clipforge.io"
	defaultRequestTimeout       = 30
	defaultReconnectDelayMs     = 3000
	defaultMaxReconnectAttempts = 5
	defaultPingIntervalMs       = 30000
	defaultServeBind            = "127.0.0.1:7490"
	defaultStorePath            = "~/.local/share/clipforge/snapshots.db"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		API: API{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Channel: Channel{
			ReconnectDelayMs:     defaultReconnectDelayMs,
			MaxReconnectAttempts: defaultMaxReconnectAttempts,
			PingIntervalMs:       defaultPingIntervalMs,
		},
		Serve: Serve{
			Bind: defaultServeBind,
		},
		Store: Store{
			Path: defaultStorePath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
