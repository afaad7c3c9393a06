package config

const (
	defaultStorageDriver = "file"

	defaultAPIListen      = ":8080"
	defaultMaxPromptChars = 4000

	defaultTokenTTLMinutes = 60

	defaultLLMProvider = "ollama"
	defaultLLMUpstream = "http://localhost:11434"
	defaultLLMModel    = "llama3.2"

	defaultWindowMessages     = 12
	defaultSummarizeThreshold = 20
	defaultSummaryMaxWords    = 140
	defaultStructuredMaxItems = 20

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "parlor.events"

	defaultClientAPITarget = "http://localhost:8080"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		API: APIConfig{
			Listen:         defaultAPIListen,
			MaxPromptChars: defaultMaxPromptChars,
		},
		Auth: AuthConfig{
			TokenTTLMinutes: defaultTokenTTLMinutes,
		},
		LLM: LLMConfig{
			Provider: defaultLLMProvider,
			Upstream: defaultLLMUpstream,
			Model:    defaultLLMModel,
		},
		Memory: MemoryConfig{
			WindowMessages:     defaultWindowMessages,
			SummarizeThreshold: defaultSummarizeThreshold,
			SummaryMaxWords:    defaultSummaryMaxWords,
			StructuredEnabled:  true,
			StructuredMaxItems: defaultStructuredMaxItems,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}
