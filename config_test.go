package hetsync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
[server]
listen_address = ":7000"
quorum_size = 3
dimension = 16
round_timeout = "750ms"
deadline_poll = "25ms"

[admin]
address = ""

[mqtt]
url = "tcp://localhost:1883"
topic_prefix = "lab"
timeout = "3s"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}

	if cfg != DefaultConfig() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
	if cfg.MaxPayload() != 40 {
		t.Errorf("Expected max payload 40, got %d", cfg.MaxPayload())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}

	if cfg.Server.ListenAddress != ":7000" || cfg.Server.QuorumSize != 3 || cfg.Server.Dimension != 16 {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.RoundTimeout != 750*time.Millisecond || cfg.Server.DeadlinePoll != 25*time.Millisecond {
		t.Errorf("Unexpected durations: %+v", cfg.Server)
	}
	if cfg.Server.WriteTimeout != 5*time.Second {
		t.Errorf("Expected default write timeout to survive, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Admin.Address != "" {
		t.Errorf("Expected admin to be disabled, got %q", cfg.Admin.Address)
	}
	if cfg.MQTT.URL != "tcp://localhost:1883" || cfg.MQTT.TopicPrefix != "lab" || cfg.MQTT.Timeout != 3*time.Second {
		t.Errorf("Unexpected mqtt config: %+v", cfg.MQTT)
	}
	if cfg.MQTT.ClientID != "hetsync-server" || cfg.MQTT.QoS != 1 || cfg.Server.HistorySize != 32 {
		t.Errorf("Expected absent keys to keep defaults, got %+v %+v", cfg.Server, cfg.MQTT)
	}
	if cfg.MaxPayload() != 64 {
		t.Errorf("Expected max payload 64, got %d", cfg.MaxPayload())
	}
}

func TestLoadConfigFileQoSOutOfRange(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "[mqtt]\nqos = 3\n"))
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Expected %v, got %v", ErrInvalidQoS, err)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("HETSYNC_QUORUM_SIZE", "7")
	t.Setenv("HETSYNC_NAIVE", "true")
	t.Setenv("HETSYNC_ROUND_TIMEOUT", "5s")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig: unexpected error: %v", err)
	}

	if cfg.Server.QuorumSize != 7 || !cfg.Server.Naive || cfg.Server.RoundTimeout != 5*time.Second {
		t.Errorf("Expected env overrides, got %+v", cfg.Server)
	}
	if cfg.Server.Dimension != 16 {
		t.Errorf("Expected file value to survive, got %d", cfg.Server.Dimension)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   func(t *testing.T) string
		setenv map[string]string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.toml") },
		},
		{
			name: "malformed toml",
			path: func(t *testing.T) string { return writeConfig(t, "[server\nquorum_size = ") },
		},
		{
			name: "bad duration",
			path: func(t *testing.T) string { return writeConfig(t, "[server]\nround_timeout = \"soon\"\n") },
		},
		{
			name: "wrong type",
			path: func(t *testing.T) string { return writeConfig(t, "[server]\nquorum_size = \"four\"\n") },
		},
		{
			name:   "bad env value",
			path:   func(*testing.T) string { return "" },
			setenv: map[string]string{"HETSYNC_DIMENSION": "ten"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.setenv {
				t.Setenv(k, v)
			}

			if _, err := LoadConfig(tc.path(t)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no listen address", mutate: func(c *Config) { c.Server.ListenAddress = "" }, err: ErrMissingListen},
		{name: "zero quorum", mutate: func(c *Config) { c.Server.QuorumSize = 0 }, err: ErrInvalidQuorum},
		{name: "zero dimension", mutate: func(c *Config) { c.Server.Dimension = 0 }, err: ErrInvalidDimension},
		{name: "zero timeout", mutate: func(c *Config) { c.Server.RoundTimeout = 0 }, err: ErrInvalidTimeout},
		{name: "zero poll", mutate: func(c *Config) { c.Server.DeadlinePoll = 0 }, err: ErrInvalidPoll},
		{
			name: "naive ignores timeout",
			mutate: func(c *Config) {
				c.Server.Naive = true
				c.Server.RoundTimeout = 0
				c.Server.DeadlinePoll = 0
			},
		},
		{name: "bad qos", mutate: func(c *Config) { c.MQTT.QoS = 3 }, err: ErrInvalidQoS},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if !errors.Is(err, tc.err) {
				t.Errorf("Expected %v, got %v", tc.err, err)
			}
		})
	}
}
