package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent parlor configuration stored as config.toml
// in the .parlor/ directory. The TOML layout uses sections for logical grouping.
// Secrets (API key, JWT secret, provider keys) are never stored here; they
// come from the environment.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Auth    AuthConfig    `toml:"auth"`
	LLM     LLMConfig     `toml:"llm"`
	Memory  MemoryConfig  `toml:"memory"`
	Events  EventsConfig  `toml:"events"`
	Client  ClientConfig  `toml:"client"`
}

// StorageConfig holds session store settings.
type StorageConfig struct {
	// Driver selects the backend: "file", "sqlite", or "inmemory".
	Driver string `toml:"driver,omitempty"`

	// Path is the session directory for the file driver. Empty means
	// <dotdir>/sessions.
	Path string `toml:"path,omitempty"`

	// SQLitePath is the database file for the sqlite driver. Empty means
	// <dotdir>/parlor.db.
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen         string `toml:"listen,omitempty"`
	MaxPromptChars int    `toml:"max_prompt_chars,omitempty"`
}

// AuthConfig holds login and token settings.
type AuthConfig struct {
	TokenTTLMinutes int `toml:"token_ttl_minutes,omitempty"`
}

// LLMConfig holds generation provider settings.
type LLMConfig struct {
	// Provider selects the generator: "ollama" or "openai".
	Provider string `toml:"provider,omitempty"`

	// Upstream is the provider base URL.
	Upstream string `toml:"upstream,omitempty"`

	// Model is the chat model name.
	Model string `toml:"model,omitempty"`
}

// MemoryConfig holds turn pipeline settings.
type MemoryConfig struct {
	WindowMessages     int  `toml:"window_messages,omitempty"`
	SummarizeThreshold int  `toml:"summarize_threshold,omitempty"`
	SummaryMaxWords    int  `toml:"summary_max_words,omitempty"`
	StructuredEnabled  bool `toml:"structured_enabled"`
	StructuredMaxItems int  `toml:"structured_max_items,omitempty"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	// Provider selects the publisher: "nop" or "kafka".
	Provider string `toml:"provider,omitempty"`

	// Brokers lists Kafka bootstrap addresses.
	Brokers []string `toml:"brokers,omitempty"`

	// Topic is the destination topic.
	Topic string `toml:"topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (e.g. parlor chat). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func intKey(get func(c *Config) *int, name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *get(c) == 0 {
				return ""
			}
			return strconv.Itoa(*get(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*get(c) = n
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	},
	"storage.path": {
		get: func(c *Config) string { return c.Storage.Path },
		set: func(c *Config, v string) error { c.Storage.Path = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"api.max_prompt_chars": intKey(func(c *Config) *int { return &c.API.MaxPromptChars }, "api.max_prompt_chars"),
	"auth.token_ttl_minutes": intKey(func(c *Config) *int { return &c.Auth.TokenTTLMinutes }, "auth.token_ttl_minutes"),
	"llm.provider": {
		get: func(c *Config) string { return c.LLM.Provider },
		set: func(c *Config, v string) error { c.LLM.Provider = v; return nil },
	},
	"llm.upstream": {
		get: func(c *Config) string { return c.LLM.Upstream },
		set: func(c *Config, v string) error { c.LLM.Upstream = v; return nil },
	},
	"llm.model": {
		get: func(c *Config) string { return c.LLM.Model },
		set: func(c *Config, v string) error { c.LLM.Model = v; return nil },
	},
	"memory.window_messages":     intKey(func(c *Config) *int { return &c.Memory.WindowMessages }, "memory.window_messages"),
	"memory.summarize_threshold": intKey(func(c *Config) *int { return &c.Memory.SummarizeThreshold }, "memory.summarize_threshold"),
	"memory.summary_max_words":   intKey(func(c *Config) *int { return &c.Memory.SummaryMaxWords }, "memory.summary_max_words"),
	"memory.structured_enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Memory.StructuredEnabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for memory.structured_enabled: %w", err)
			}
			c.Memory.StructuredEnabled = b
			return nil
		},
	},
	"memory.structured_max_items": intKey(func(c *Config) *int { return &c.Memory.StructuredMaxItems }, "memory.structured_max_items"),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for _, broker := range strings.Split(v, ",") {
				if broker = strings.TrimSpace(broker); broker != "" {
					c.Events.Brokers = append(c.Events.Brokers, broker)
				}
			}
			return nil
		},
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}
