package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const cognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// AzureAuth authenticates requests against Azure OpenAI, either with a static
// api-key header or with an Entra ID bearer token.
type AzureAuth struct {
	APIKey      string
	TokenSource oauth2.TokenSource
}

// NewAzureAuth prefers the api key and falls back to client credentials when
// the tenant, client id and secret are all present.
func NewAzureAuth(apiKey, tenantID, clientID, clientSecret string) AzureAuth {
	auth := AzureAuth{APIKey: strings.TrimSpace(apiKey)}
	if auth.APIKey != "" || tenantID == "" || clientID == "" || clientSecret == "" {
		return auth
	}
	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(tenantID)),
		Scopes:       []string{cognitiveServicesScope},
	}
	auth.TokenSource = cc.TokenSource(context.Background())
	return auth
}

// Configured reports whether any credential is available.
func (a AzureAuth) Configured() bool {
	return a.APIKey != "" || a.TokenSource != nil
}

// Apply sets the authentication header on req.
func (a AzureAuth) Apply(req *http.Request) error {
	if a.APIKey != "" {
		req.Header.Set("api-key", a.APIKey)
		return nil
	}
	if a.TokenSource == nil {
		return ErrMissingCredentials
	}
	token, err := a.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("azure: fetch entra token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// AzureConfig describes one Azure OpenAI chat deployment.
type AzureConfig struct {
	Endpoint   string
	Deployment string
	APIVersion string
	Auth       AzureAuth
	HTTPClient *http.Client
}

// AzureClient sends chat completions to an Azure OpenAI deployment.
type AzureClient struct {
	endpoint   string
	deployment string
	apiVersion string
	auth       AzureAuth
	client     *http.Client
}

// NewAzureClient constructs a chat client for the configured deployment.
func NewAzureClient(cfg AzureConfig) *AzureClient {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 90 * time.Second}
	}
	return &AzureClient{
		endpoint:   strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/"),
		deployment: strings.TrimSpace(cfg.Deployment),
		apiVersion: strings.TrimSpace(cfg.APIVersion),
		auth:       cfg.Auth,
		client:     client,
	}
}

// DeploymentURL builds {endpoint}/openai/deployments/{deployment}/{operation}?api-version={v}.
func DeploymentURL(endpoint, deployment, operation, apiVersion string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		strings.TrimSuffix(endpoint, "/"),
		url.PathEscape(deployment),
		operation,
		url.QueryEscape(apiVersion),
	)
}

type azureContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *azureImageURL `json:"image_url,omitempty"`
}

type azureImageURL struct {
	URL string `json:"url"`
}

type azureMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatCompletion sends the conversation and returns the first choice content.
func (c *AzureClient) ChatCompletion(ctx context.Context, messages []ChatMessage, opts Options) (string, error) {
	if c.endpoint == "" || c.deployment == "" || !c.auth.Configured() {
		return "", ErrMissingCredentials
	}

	wire := make([]azureMessage, 0, len(messages))
	for _, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == "" {
			role = "user"
		}
		if len(msg.Images) == 0 {
			wire = append(wire, azureMessage{Role: role, Content: msg.Text})
			continue
		}
		parts := []azureContentPart{{Type: "text", Text: msg.Text}}
		for _, img := range msg.Images {
			mime := img.MIMEType
			if mime == "" {
				mime = DetectMIME(img.Data)
			}
			parts = append(parts, azureContentPart{
				Type:     "image_url",
				ImageURL: &azureImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)},
			})
		}
		wire = append(wire, azureMessage{Role: role, Content: parts})
	}

	payload := map[string]any{
		"messages":    wire,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		payload["max_tokens"] = opts.MaxTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("azure: marshal payload: %w", err)
	}

	endpoint := DeploymentURL(c.endpoint, c.deployment, "chat/completions", c.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("azure: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.auth.Apply(req); err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("azure: perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var failure struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		message := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &failure) == nil && failure.Error.Message != "" {
			message = failure.Error.Message
		}
		return "", fmt.Errorf("azure: status %d: %s", resp.StatusCode, message)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("azure: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("azure: no choices returned")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("azure: empty completion")
	}
	return content, nil
}
