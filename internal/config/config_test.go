package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != DefaultHost {
		t.Errorf("Expected host %s, got %s", DefaultHost, cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if cfg.Pipeline.MaxActiveHandlers != 1000 {
		t.Errorf("Expected max_active_handlers 1000, got %d", cfg.Pipeline.MaxActiveHandlers)
	}
	if cfg.HTTPClient.DefaultTries != 3 {
		t.Errorf("Expected default_tries 3, got %d", cfg.HTTPClient.DefaultTries)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected log level 'info', got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig_WithoutFile(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
}

func TestLoadConfig_WithEnvironmentVariables(t *testing.T) {
	testEnvVars := map[string]string{
		"BHTTP_SERVER_PORT":                  "9000",
		"BHTTP_SERVER_HOST":                  "127.0.0.1",
		"BHTTP_LOGGING_LEVEL":                "debug",
		"BHTTP_HTTP_CLIENT_DEFAULT_TRIES":     "5",
		"BHTTP_HTTP_CLIENT_TIMEOUT_MULTIPLIER": "2.5",
	}

	for key, value := range testEnvVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnvVars {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load with env vars failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000 from env var, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1 from env var, got %s", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug from env var, got %s", cfg.Logging.Level)
	}
	if cfg.HTTPClient.DefaultTries != 5 {
		t.Errorf("Expected default_tries 5 from env var, got %d", cfg.HTTPClient.DefaultTries)
	}
	if cfg.HTTPClient.TimeoutMultiplier != 2.5 {
		t.Errorf("Expected timeout_multiplier 2.5 from env var, got %v", cfg.HTTPClient.TimeoutMultiplier)
	}
}

func TestConfigValidate_DefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() returned unexpected error: %v", err)
	}
}

func TestConfigValidate_RejectsBadFields(t *testing.T) {
	testCases := []struct {
		name        string
		modify      func(*Config)
		errContains string
	}{
		{
			name:        "server.port zero",
			modify:      func(c *Config) { c.Server.Port = 0 },
			errContains: "server.port",
		},
		{
			name:        "server.port above 65535",
			modify:      func(c *Config) { c.Server.Port = 99999 },
			errContains: "server.port",
		},
		{
			name:        "empty server.host",
			modify:      func(c *Config) { c.Server.Host = "" },
			errContains: "server.host",
		},
		{
			name:        "zero max_active_handlers",
			modify:      func(c *Config) { c.Pipeline.MaxActiveHandlers = 0 },
			errContains: "max_active_handlers",
		},
		{
			name:        "zero default_tries",
			modify:      func(c *Config) { c.HTTPClient.DefaultTries = 0 },
			errContains: "default_tries",
		},
		{
			name: "upstream with no servers",
			modify: func(c *Config) {
				c.Upstreams["api"] = UpstreamConfig{Tries: 3}
			},
			errContains: "servers must not be empty",
		},
		{
			name: "upstream server with empty address",
			modify: func(c *Config) {
				c.Upstreams["api"] = UpstreamConfig{
					Servers: []ServerEntryConfig{{Address: "", Weight: 1}},
					Tries:   3,
				}
			},
			errContains: "address must not be empty",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tc.errContains)
			}
			if !strings.Contains(err.Error(), tc.errContains) {
				t.Errorf("Expected error containing %q, got: %v", tc.errContains, err)
			}
		})
	}
}

func TestConfigValidate_ValidUpstream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Upstreams["api"] = UpstreamConfig{
		Servers: []ServerEntryConfig{
			{Address: "127.0.0.1:9001", Weight: 2},
			{Address: "127.0.0.1:9002", Weight: 1},
		},
		Tries:       3,
		MaxFails:    3,
		FailTimeout: 10 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid upstream config, got error: %v", err)
	}
}
