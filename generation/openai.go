package generation

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gogpu/retouch/document"
)

// OpenAIModelID is the pseudo-model appended to the backend's model list
// that routes translation to an OpenAI-compatible endpoint.
const OpenAIModelID = "openai-compatible"

// DefaultOpenAIModel is the chat model requested when none is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// DefaultOpenAIPrompt is the system prompt used when none is configured.
const DefaultOpenAIPrompt = "Translate the following text. Keep one output line per input line " +
	"and reply with the translation only."

// OpenAIConfig configures the OpenAI-compatible endpoint. The endpoint is
// the API base, for example https://api.openai.com/v1.
type OpenAIConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Prompt   string
}

// Configured reports whether both endpoint and API key are set.
func (c OpenAIConfig) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && strings.TrimSpace(c.APIKey) != ""
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultOpenAIModel
	}
	if strings.TrimSpace(c.Prompt) == "" {
		c.Prompt = DefaultOpenAIPrompt
	}
	return c
}

// complete sends content with the configured system prompt and returns the
// first choice.
func complete(ctx context.Context, hc *http.Client, cfg OpenAIConfig, content string) (string, error) {
	cfg = cfg.withDefaults()
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	oc.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if hc != nil {
		oc.HTTPClient = hc
	}
	client := openai.NewClientWithConfig(oc)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: strings.TrimSpace(cfg.Prompt)},
			{Role: openai.ChatMessageRoleUser, Content: content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generation: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

var lineBreak = regexp.MustCompile(`\r?\n`)

// sourceText returns the text sent for translation: the single block's
// text, or every block's text joined by newlines.
func sourceText(blocks []document.TextBlock, single *int) string {
	if single != nil {
		if *single < 0 || *single >= len(blocks) || blocks[*single].Text == nil {
			return ""
		}
		return *blocks[*single].Text
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		if b.Text != nil {
			parts[i] = *b.Text
		}
	}
	return strings.Join(parts, "\n")
}

// applyCompletion assigns the completion to the blocks. A single block
// receives the whole completion; otherwise line i goes to block i and
// blocks without a line are left as is.
func applyCompletion(blocks []document.TextBlock, single *int, completion string) []document.TextBlock {
	out := make([]document.TextBlock, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	if single != nil {
		if *single >= 0 && *single < len(out) {
			s := completion
			out[*single].Translation = &s
		}
		return out
	}
	lines := lineBreak.Split(completion, -1)
	for i := range out {
		if i >= len(lines) {
			break
		}
		s := lines[i]
		out[i].Translation = &s
	}
	return out
}
