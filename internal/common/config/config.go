// Package config provides configuration management for the orchestrator.
// It supports loading configuration from defaults, a config file, and
// environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the orchestrator.
type Config struct {
	Agent       ListenerConfig    `mapstructure:"agent"`
	Service     ListenerConfig    `mapstructure:"service"`
	Client      ListenerConfig    `mapstructure:"client"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Events      EventsConfig      `mapstructure:"events"`
	Correlator  CorrelatorConfig  `mapstructure:"correlator"`
	Peers       PeersConfig       `mapstructure:"peers"`
	ToolServers []ToolServerEntry `mapstructure:"toolServers"`
}

// ListenerConfig holds the HTTP/WebSocket listener configuration for one hub.
type ListenerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// Addr returns the host:port this listener binds to.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (l ListenerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(l.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (l ListenerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(l.WriteTimeout) * time.Second
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EventsConfig selects and namespaces the internal event bus backend.
type EventsConfig struct {
	// NATSUrl, when set, backs the internal event bus with NATS; an empty
	// value falls back to the in-memory bus. Either way the bus never
	// leaves the process boundary of this orchestrator instance.
	NATSUrl       string `mapstructure:"natsUrl"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
	Namespace     string `mapstructure:"namespace"`
}

// CorrelatorConfig holds default deadlines for the pending-response correlator.
type CorrelatorConfig struct {
	DefaultTimeoutSeconds int `mapstructure:"defaultTimeoutSeconds"`
	ToolCallTimeoutSeconds int `mapstructure:"toolCallTimeoutSeconds"`
	// AgentDisconnectGraceMillis is the grace period before an in-progress
	// task owned by a disconnected agent is failed. Default 0 (immediate).
	AgentDisconnectGraceMillis int `mapstructure:"agentDisconnectGraceMillis"`
}

func (c CorrelatorConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

func (c CorrelatorConfig) ToolCallTimeout() time.Duration {
	return time.Duration(c.ToolCallTimeoutSeconds) * time.Second
}

func (c CorrelatorConfig) AgentDisconnectGrace() time.Duration {
	return time.Duration(c.AgentDisconnectGraceMillis) * time.Millisecond
}

// PeersConfig lists pre-configured peers admitted before they ever connect,
// so discovery responses and routing can resolve them by name immediately.
type PeersConfig struct {
	Agents   []PeerEntry `mapstructure:"agents"`
	Services []PeerEntry `mapstructure:"services"`
}

// PeerEntry pre-declares an agent or service identity. ID is optional; when
// empty, main mints an unprefixed one with ids.New() at startup, unlike the
// prefixed ids minted for live registrations.
type PeerEntry struct {
	ID           string            `mapstructure:"id"`
	Name         string            `mapstructure:"name"`
	Capabilities []string          `mapstructure:"capabilities"`
	Metadata     map[string]string `mapstructure:"metadata"`
}

// ToolServerEntry pre-registers a TSP tool server.
type ToolServerEntry struct {
	Name    string   `mapstructure:"name"`
	Type    string   `mapstructure:"type"` // python, node, custom
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Path    string   `mapstructure:"path"`
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.host", "0.0.0.0")
	v.SetDefault("agent.port", 3000)
	v.SetDefault("agent.readTimeout", 30)
	v.SetDefault("agent.writeTimeout", 30)

	v.SetDefault("service.host", "0.0.0.0")
	v.SetDefault("service.port", 3002)
	v.SetDefault("service.readTimeout", 30)
	v.SetDefault("service.writeTimeout", 30)

	v.SetDefault("client.host", "0.0.0.0")
	v.SetDefault("client.port", 3001)
	v.SetDefault("client.readTimeout", 30)
	v.SetDefault("client.writeTimeout", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")

	// Empty NATS URL means use the in-memory event bus.
	v.SetDefault("events.natsUrl", "")
	v.SetDefault("events.clientId", "orchestrator")
	v.SetDefault("events.maxReconnects", 10)
	v.SetDefault("events.namespace", "")

	v.SetDefault("correlator.defaultTimeoutSeconds", 30)
	v.SetDefault("correlator.toolCallTimeoutSeconds", 60)
	v.SetDefault("correlator.agentDisconnectGraceMillis", 0)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix ORCHESTRATOR_ and the upper-cased key
// with dots replaced by underscores (agent.readTimeout is
// ORCHESTRATOR_AGENT_READTIMEOUT).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("agent.port", "ORCHESTRATOR_AGENT_PORT")
	_ = v.BindEnv("service.port", "ORCHESTRATOR_SERVICE_PORT")
	_ = v.BindEnv("client.port", "ORCHESTRATOR_CLIENT_PORT")
	_ = v.BindEnv("logging.level", "ORCHESTRATOR_LOG_LEVEL")
	_ = v.BindEnv("events.natsUrl", "ORCHESTRATOR_NATS_URL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/orchestrator/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set, aggregating
// every violation into a single error rather than failing on the first.
func validate(cfg *Config) error {
	var errs []string

	for name, l := range map[string]ListenerConfig{"agent": cfg.Agent, "service": cfg.Service, "client": cfg.Client} {
		if l.Port <= 0 || l.Port > 65535 {
			errs = append(errs, fmt.Sprintf("%s.port must be between 1 and 65535", name))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Correlator.DefaultTimeoutSeconds <= 0 {
		errs = append(errs, "correlator.defaultTimeoutSeconds must be positive")
	}
	if cfg.Correlator.ToolCallTimeoutSeconds <= 0 {
		errs = append(errs, "correlator.toolCallTimeoutSeconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
