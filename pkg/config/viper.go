package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/parlorhq/parlor/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PARLOR_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PARLOR_API_LISTEN, PARLOR_LLM_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: PARLOR_API_LISTEN, PARLOR_STORAGE_DRIVER, etc.
	v.SetEnvPrefix("PARLOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// API. The key itself is a secret and only ever comes from the
	// environment (PARLOR_API_KEY).
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.max_prompt_chars", d.API.MaxPromptChars)
	v.SetDefault("api.key", "")

	// Auth. The signing secret only ever comes from the environment
	// (PARLOR_AUTH_JWT_SECRET).
	v.SetDefault("auth.token_ttl_minutes", d.Auth.TokenTTLMinutes)
	v.SetDefault("auth.jwt_secret", "")

	// LLM. Provider API keys come from the environment (PARLOR_LLM_API_KEY).
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.upstream", d.LLM.Upstream)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")

	// Memory
	v.SetDefault("memory.window_messages", d.Memory.WindowMessages)
	v.SetDefault("memory.summarize_threshold", d.Memory.SummarizeThreshold)
	v.SetDefault("memory.summary_max_words", d.Memory.SummaryMaxWords)
	v.SetDefault("memory.structured_enabled", d.Memory.StructuredEnabled)
	v.SetDefault("memory.structured_max_items", d.Memory.StructuredMaxItems)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Client. The API key and bearer token only ever come from the
	// environment (PARLOR_CLIENT_API_KEY, PARLOR_CLIENT_TOKEN).
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.token", "")
}
