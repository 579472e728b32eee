package config

import "time"

// Config holds all configuration for the application (ss6: External Interfaces).
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Debug      DebugConfig                `yaml:"debug"`
	Pipeline   PipelineConfig             `yaml:"pipeline"`
	HTTPClient HTTPClientConfig           `yaml:"http_client"`
	Upstreams  map[string]UpstreamConfig  `yaml:"upstreams"`
	Logging    LoggingConfig              `yaml:"logging"`
	Theme      string                     `yaml:"theme"`
}

// ServerConfig holds the listener and graceful-shutdown settings.
type ServerConfig struct {
	Host            string           `yaml:"host"`
	Port            int              `yaml:"port"`
	ReusePort       bool             `yaml:"reuse_port"`
	ReadTimeout     time.Duration    `yaml:"read_timeout"`
	WriteTimeout    time.Duration    `yaml:"write_timeout"`
	StopTimeout     time.Duration    `yaml:"stop_timeout"`
	TaskThresholdMs int64            `yaml:"task_threshold_ms"`
	TaskCriticalMs  int64            `yaml:"task_critical_ms"`
	RateLimits      ServerRateLimits `yaml:"rate_limits"`
}

// ServerRateLimits controls how the client IP used for per-IP admission
// decisions is derived from a request that may have passed through a
// reverse proxy.
type ServerRateLimits struct {
	TrustProxyHeaders  bool     `yaml:"trust_proxy_headers"`
	TrustedProxyCIDRs  []string `yaml:"trusted_proxy_cidrs"`
}

// DebugConfig holds the debug-mode credential pair used to gate the x-hh-debug
// marker (ss6, External Interfaces).
type DebugConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// PipelineConfig holds Handler Pipeline admission settings (ss4.H).
type PipelineConfig struct {
	MaxActiveHandlers int `yaml:"max_active_handlers"`
}

// HTTPClientConfig holds the HTTP Client Core's process-wide defaults,
// overridable per upstream (ss4.C, ss4.D).
type HTTPClientConfig struct {
	MaxClients         int           `yaml:"max_clients"`
	MaxClientsPerHost  int           `yaml:"max_clients_per_host"`
	DefaultTimeout     time.Duration `yaml:"default_timeout"`
	DefaultTries       int           `yaml:"default_tries"`
	DefaultMaxFails    int           `yaml:"default_max_fails"`
	DefaultFailTimeout time.Duration `yaml:"default_fail_timeout"`
	TimeoutMultiplier  float64       `yaml:"timeout_multiplier"`
	ProxyHost          string        `yaml:"proxy_host"`
	ProxyPort          int           `yaml:"proxy_port"`
}

// UpstreamConfig describes one named Server Pool's membership and retry
// policy (ss3, ss4.A, ss4.B).
type UpstreamConfig struct {
	Servers     []ServerEntryConfig `yaml:"servers"`
	Tries       int                 `yaml:"tries"`
	MaxFails    int                 `yaml:"max_fails"`
	FailTimeout time.Duration       `yaml:"fail_timeout"`
}

// ServerEntryConfig is one weighted backend address within an upstream.
type ServerEntryConfig struct {
	Address string `yaml:"address"`
	Weight  int    `yaml:"weight"`
}

// LoggingConfig mirrors logger.Config so viper can decode straight into it.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	FileOutput bool   `yaml:"file_output"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}
