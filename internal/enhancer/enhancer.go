// Package enhancer rewrites user prompts into richer visual descriptions
// before generation, using an OpenAI chat model.
package enhancer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const maxEnhancedChars = 450

const systemPrompt = `You are an expert AI prompt engineer specializing in visual content generation. Enhance the user's prompt for thumbnail creation.

CRITICAL: Keep the enhanced prompt under 450 characters.

GUIDELINES:
- Transform basic ideas into detailed, specific visual descriptions
- Add composition, lighting and color details that make thumbnails click-worthy
- Maintain the user's original intent

Respond with JSON only:
{"enhanced": "detailed enhanced prompt", "improvements": ["specific improvements made"], "confidence": 0.85}`

// EnhancedPrompt is the structured enhancement result.
type EnhancedPrompt struct {
	Enhanced     string   `json:"enhanced"`
	Improvements []string `json:"improvements"`
	Confidence   float64  `json:"confidence"`
}

type Enhancer struct {
	client *openai.Client
	model  string
}

func New(apiKey, model string) *Enhancer {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Enhancer{client: &client, model: model}
}

// Enhance rewrites the prompt. The optional styleHint and kind feed extra
// context into the request.
func (e *Enhancer) Enhance(ctx context.Context, prompt, styleHint, kind string) (*EnhancedPrompt, error) {
	userMessage := fmt.Sprintf("Original prompt: %q", prompt)
	if styleHint != "" {
		userMessage += "\nStyle preference: " + styleHint
	}
	if kind != "" {
		userMessage += "\nThumbnail type: " + kind
	}

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		MaxTokens:   openai.Int(800),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return nil, fmt.Errorf("enhance prompt: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	enhanced, err := parseEnhancement(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return enhanced, nil
}

// parseEnhancement decodes the model's JSON reply, tolerating markdown code
// fences, and clamps the result to the character budget.
func parseEnhancement(content string) (*EnhancedPrompt, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result EnhancedPrompt
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("decode enhancement: %w", err)
	}
	if result.Enhanced == "" {
		return nil, fmt.Errorf("empty enhanced prompt in response")
	}
	if utf8.RuneCountInString(result.Enhanced) > maxEnhancedChars {
		runes := []rune(result.Enhanced)
		result.Enhanced = string(runes[:maxEnhancedChars])
	}
	return &result, nil
}
