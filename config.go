package hetsync

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
)

const envPrefix = "HETSYNC_"

var (
	ErrInvalidQuorum    = errors.New("quorum size must be at least 1")
	ErrInvalidDimension = errors.New("dimension must be at least 1")
	ErrInvalidTimeout   = errors.New("round timeout must be positive unless running naive")
	ErrInvalidPoll      = errors.New("deadline poll interval must be positive unless running naive")
	ErrMissingListen    = errors.New("listen address is required")
	ErrInvalidQoS       = errors.New("mqtt qos must be 0, 1 or 2")
)

type Config struct {
	Server ServerConfig `toml:"server"`
	Admin  AdminConfig  `toml:"admin"`
	MQTT   MQTTConfig   `toml:"mqtt"`
}

type ServerConfig struct {
	ListenAddress string        `toml:"listen_address" env:"LISTEN_ADDRESS"`
	QuorumSize    int           `toml:"quorum_size" env:"QUORUM_SIZE"`
	Dimension     int           `toml:"dimension" env:"DIMENSION"`
	Naive         bool          `toml:"naive" env:"NAIVE"`
	RoundTimeout  time.Duration `toml:"round_timeout" env:"ROUND_TIMEOUT"`
	DeadlinePoll  time.Duration `toml:"deadline_poll" env:"DEADLINE_POLL"`
	WriteTimeout  time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	HistorySize   int           `toml:"history_size" env:"HISTORY_SIZE"`
	LogLevel      string        `toml:"log_level" env:"LOG_LEVEL"`
}

type AdminConfig struct {
	// Address of the admin HTTP listener. Empty disables it.
	Address string `toml:"address" env:"ADMIN_ADDRESS"`
}

type MQTTConfig struct {
	// URL of the broker. Empty disables event publishing.
	URL         string        `toml:"url" env:"MQTT_URL"`
	ClientID    string        `toml:"client_id" env:"MQTT_CLIENT_ID"`
	Username    string        `toml:"username" env:"MQTT_USERNAME"`
	Password    string        `toml:"password" env:"MQTT_PASSWORD"`
	QoS         byte          `toml:"qos" env:"MQTT_QOS"`
	Timeout     time.Duration `toml:"timeout" env:"MQTT_TIMEOUT"`
	TopicPrefix string        `toml:"topic_prefix" env:"MQTT_TOPIC_PREFIX"`
	CAPath      string        `toml:"ca_path" env:"MQTT_CA_PATH"`
	CertPath    string        `toml:"cert_path" env:"MQTT_CERT_PATH"`
	KeyPath     string        `toml:"key_path" env:"MQTT_KEY_PATH"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddress: ":9999",
			QuorumSize:    4,
			Dimension:     10,
			RoundTimeout:  2 * time.Second,
			DeadlinePoll:  100 * time.Millisecond,
			WriteTimeout:  5 * time.Second,
			HistorySize:   32,
			LogLevel:      "info",
		},
		Admin: AdminConfig{
			Address: ":9998",
		},
		MQTT: MQTTConfig{
			ClientID:    "hetsync-server",
			QoS:         1,
			Timeout:     10 * time.Second,
			TopicPrefix: "hetsync",
		},
	}
}

// LoadConfig resolves the configuration from defaults, the optional TOML
// file at path and HETSYNC_ prefixed environment variables, in that order.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if err := tree.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Server.ListenAddress == "":
		return ErrMissingListen
	case c.Server.QuorumSize < 1:
		return ErrInvalidQuorum
	case c.Server.Dimension < 1:
		return ErrInvalidDimension
	case !c.Server.Naive && c.Server.RoundTimeout <= 0:
		return ErrInvalidTimeout
	case !c.Server.Naive && c.Server.DeadlinePoll <= 0:
		return ErrInvalidPoll
	case c.MQTT.QoS > 2:
		return ErrInvalidQoS
	}

	return nil
}

// MaxPayload is the largest gradient payload in bytes a worker may send.
func (c Config) MaxPayload() uint64 {
	return uint64(c.Server.Dimension) * 4
}
