package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gogpu/retouch/canvas"
	"github.com/gogpu/retouch/document"
)

// MaxBrushSize bounds the brush size in document pixels.
const MaxBrushSize = 512

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether a validation error was recorded for field.
func (e ValidationErrors) Has(field string) bool {
	for _, v := range e {
		if v.Field == field {
			return true
		}
	}
	return false
}

// ValidateConfig checks every section and returns ValidationErrors when any
// field is invalid.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	errs = append(errs, validateBackend(&c.Backend)...)
	errs = append(errs, validateBrush(&c.Brush)...)
	errs = append(errs, validateSync(&c.Sync)...)
	errs = append(errs, validateDisplay(&c.Display)...)
	errs = append(errs, validateGeneration(&c.Generation)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBackend(b *BackendConfig) ValidationErrors {
	var errs ValidationErrors
	if b.URL == "" {
		errs = append(errs, ValidationError{Field: "backend.url", Message: "url is required"})
	} else if err := validateHTTPURL(b.URL); err != nil {
		errs = append(errs, ValidationError{Field: "backend.url", Message: err.Error()})
	}
	if b.TimeoutSec < 0 {
		errs = append(errs, ValidationError{Field: "backend.timeout_sec", Message: "timeout cannot be negative"})
	}
	for k := range b.Headers {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, ValidationError{Field: "backend.headers", Message: "header name cannot be empty"})
			break
		}
	}
	return errs
}

func validateBrush(b *BrushConfig) ValidationErrors {
	var errs ValidationErrors
	if b.Size <= 0 || b.Size > MaxBrushSize {
		errs = append(errs, ValidationError{
			Field:   "brush.size",
			Message: fmt.Sprintf("size must be in (0, %d]", MaxBrushSize),
		})
	}
	if _, err := canvas.Hex(b.Color); err != nil {
		errs = append(errs, ValidationError{Field: "brush.color", Message: err.Error()})
	}
	return errs
}

func validateSync(s *SyncConfig) ValidationErrors {
	if s.MaskDebounceMs < 0 {
		return ValidationErrors{{Field: "sync.mask_debounce_ms", Message: "debounce cannot be negative"}}
	}
	return nil
}

func validateDisplay(d *DisplayConfig) ValidationErrors {
	var errs ValidationErrors
	if d.FadeMs < 0 {
		errs = append(errs, ValidationError{Field: "display.fade_ms", Message: "fade cannot be negative"})
	}
	if d.PoolSize < 0 {
		errs = append(errs, ValidationError{Field: "display.pool_size", Message: "pool size cannot be negative"})
	}
	if !document.RenderEffect(d.Effect).Valid() {
		errs = append(errs, ValidationError{
			Field:   "display.effect",
			Message: fmt.Sprintf("unknown render effect %q", d.Effect),
		})
	}
	return errs
}

func validateGeneration(g *GenerationConfig) ValidationErrors {
	var errs ValidationErrors
	if g.PollAttempts < 1 {
		errs = append(errs, ValidationError{Field: "generation.poll_attempts", Message: "at least one poll is required"})
	}
	if g.PollIntervalMs < 1 {
		errs = append(errs, ValidationError{Field: "generation.poll_interval_ms", Message: "interval must be positive"})
	}
	if g.OpenAI.Endpoint != "" {
		if err := validateHTTPURL(g.OpenAI.Endpoint); err != nil {
			errs = append(errs, ValidationError{Field: "generation.openai.endpoint", Message: err.Error()})
		}
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q (want debug, info, warn or error)", l.Level),
		})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q (want text or json)", l.Format),
		})
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// BrushColor returns the parsed brush color.
func (c *Config) BrushColor() (canvas.Color, error) {
	return canvas.Hex(c.Brush.Color)
}
