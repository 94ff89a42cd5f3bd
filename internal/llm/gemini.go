package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig configures the Gemini chat client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient wraps the Gemini API through the genai SDK.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient constructs a Gemini client for the desired model.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	return &GeminiClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      normalizeModel(cfg.Model),
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		httpClient: cfg.HTTPClient,
	}
}

// ChatCompletion sends the conversation to Gemini and returns the first candidate text.
// System turns become the system instruction; assistant turns map to the model role.
func (c *GeminiClient) ChatCompletion(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingCredentials
	}

	var systemPrompts []string
	var contents []*genai.Content
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "system":
			systemPrompts = append(systemPrompts, msg.Text)
			continue
		case "assistant":
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}

		parts := []*genai.Part{{Text: msg.Text}}
		for _, img := range msg.Images {
			mime := img.MIMEType
			if mime == "" {
				mime = DetectMIME(img.Data)
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{Data: img.Data, MIMEType: mime}})
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: missing user or assistant messages")
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if len(systemPrompts) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(systemPrompts, "\n\n")}},
		}
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: no candidates returned")
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if trimmed := strings.TrimSpace(part.Text); trimmed != "" {
			texts = append(texts, trimmed)
		}
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("gemini: candidate missing text")
	}
	return strings.Join(texts, "\n\n"), nil
}

func normalizeModel(model string) string {
	clean := strings.TrimSpace(model)
	clean = strings.TrimPrefix(clean, "models/")
	if clean == "" {
		return defaultGeminiModel
	}
	return clean
}
