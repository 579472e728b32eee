package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultPort = 8080
	DefaultHost = "0.0.0.0"

	DefaultFileWriteDelay = 150 * time.Millisecond // lets a config-file write finish before we re-read it

	envPrefix = "BHTTP"
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReusePort:       false,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			StopTimeout:     10 * time.Second,
			TaskThresholdMs: 100,
			TaskCriticalMs:  1000,
			RateLimits: ServerRateLimits{
				TrustProxyHeaders: false,
				TrustedProxyCIDRs: []string{
					"127.0.0.0/8",
					"10.0.0.0/8",
					"172.16.0.0/12",
					"192.168.0.0/16",
				},
			},
		},
		Debug: DebugConfig{
			Enabled: false,
		},
		Pipeline: PipelineConfig{
			MaxActiveHandlers: 1000,
		},
		HTTPClient: HTTPClientConfig{
			MaxClients:         100,
			MaxClientsPerHost:  10,
			DefaultTimeout:     10 * time.Second,
			DefaultTries:       3,
			DefaultMaxFails:    3,
			DefaultFailTimeout: 10 * time.Second,
			TimeoutMultiplier:  1.0,
		},
		Upstreams: map[string]UpstreamConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			FileOutput: false,
			PrettyLogs: true,
		},
		Theme: "default",
	}
}

// Load loads configuration from file and environment variables, overlaying
// them onto DefaultConfig. onConfigChange, if non-nil, is invoked (debounced)
// whenever the config file changes on disk.
func Load(onConfigChange func()) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if configFile := os.Getenv(envPrefix + "_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return
			}
			lastReload = now

			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return cfg, nil
}

// Validate rejects configurations that would panic or misbehave at runtime
// rather than failing a request at a time (ss7).
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if c.Pipeline.MaxActiveHandlers <= 0 {
		return fmt.Errorf("pipeline.max_active_handlers must be positive, got %d", c.Pipeline.MaxActiveHandlers)
	}
	if c.HTTPClient.DefaultTries < 1 {
		return fmt.Errorf("http_client.default_tries must be at least 1, got %d", c.HTTPClient.DefaultTries)
	}
	for name, up := range c.Upstreams {
		if len(up.Servers) == 0 {
			return fmt.Errorf("upstreams.%s.servers must not be empty", name)
		}
		for _, s := range up.Servers {
			if s.Address == "" {
				return fmt.Errorf("upstreams.%s.servers: address must not be empty", name)
			}
		}
	}
	return nil
}
