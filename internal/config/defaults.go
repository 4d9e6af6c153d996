package config

// Default values.
const (
	DefaultBackendURL     = "http://127.0.0.1:9000"
	DefaultTimeoutSec     = 300
	DefaultBrushSize      = 36
	DefaultBrushColor     = "#ffffff"
	DefaultMaskDebounceMs = 250
	DefaultFadeMs         = 180
	DefaultPoolSize       = 4
	DefaultEffect         = "normal"
	DefaultPollAttempts   = 300
	DefaultPollIntervalMs = 100
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:        DefaultBackendURL,
			TimeoutSec: DefaultTimeoutSec,
		},
		Brush: BrushConfig{
			Size:  DefaultBrushSize,
			Color: DefaultBrushColor,
		},
		Sync: SyncConfig{
			MaskDebounceMs: DefaultMaskDebounceMs,
		},
		Display: DisplayConfig{
			FadeMs:   DefaultFadeMs,
			PoolSize: DefaultPoolSize,
			Effect:   DefaultEffect,
		},
		Generation: GenerationConfig{
			PollAttempts:   DefaultPollAttempts,
			PollIntervalMs: DefaultPollIntervalMs,
			OpenAI: OpenAIConfig{
				Model: DefaultOpenAIModel,
			},
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
