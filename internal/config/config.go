package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of the todo-ui command.
type Config struct {
	Transport string        `mapstructure:"transport"`
	SSE       SSEConfig     `mapstructure:"sse"`
	Bridge    BridgeConfig  `mapstructure:"bridge"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
	Log       LogConfig     `mapstructure:"log"`
}

// SSEConfig holds the SSE transport settings.
type SSEConfig struct {
	URL            string `mapstructure:"url"`
	MaxPayloadSize int    `mapstructure:"max_payload_size"`
}

// BridgeConfig holds the protocol timeouts.
type BridgeConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout"`
}

// MetricsConfig holds the metrics endpoint settings. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Transports accepted in Config.Transport.
const (
	TransportStdIO = "stdio"
	TransportSSE   = "sse"
)

// Load reads configuration from defaults, an optional config file and the environment, in
// increasing precedence. Env var overrides use prefix MCPUI_, and MCPUI_CONFIG points at the file.
func Load() (Config, error) {
	return load(viper.New())
}

// LoadWith is Load on a caller-provided viper instance, so command flags can be bound to it first.
func LoadWith(v *viper.Viper) (Config, error) {
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("transport", TransportStdIO)
	v.SetDefault("sse.url", "")
	v.SetDefault("sse.max_payload_size", 0)
	v.SetDefault("bridge.request_timeout", 30*time.Second)
	v.SetDefault("bridge.write_timeout", 30*time.Second)
	v.SetDefault("bridge.teardown_timeout", 10*time.Second)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("MCPUI_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "mcpui"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("MCPUI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdIO:
	case TransportSSE:
		if c.SSE.URL == "" {
			return errors.New("sse transport requires sse.url")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.Bridge.RequestTimeout <= 0 {
		return errors.New("bridge.request_timeout must be positive")
	}
	if c.Bridge.WriteTimeout <= 0 {
		return errors.New("bridge.write_timeout must be positive")
	}
	if c.Bridge.TeardownTimeout <= 0 {
		return errors.New("bridge.teardown_timeout must be positive")
	}
	return nil
}
