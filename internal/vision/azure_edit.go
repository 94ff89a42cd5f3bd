package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"archRenew/internal/llm"
)

// AzureEditConfig describes the Azure OpenAI image deployment.
type AzureEditConfig struct {
	Endpoint   string
	Deployment string
	APIVersion string
	Auth       llm.AzureAuth
	HTTPClient *http.Client
}

// AzureEditBackend calls the images/edits operation of an Azure OpenAI deployment.
type AzureEditBackend struct {
	endpoint   string
	deployment string
	apiVersion string
	auth       llm.AzureAuth
	client     *http.Client
}

// NewAzureEditBackend constructs the backend.
func NewAzureEditBackend(cfg AzureEditConfig) *AzureEditBackend {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &AzureEditBackend{
		endpoint:   strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/"),
		deployment: strings.TrimSpace(cfg.Deployment),
		apiVersion: strings.TrimSpace(cfg.APIVersion),
		auth:       cfg.Auth,
		client:     client,
	}
}

// EditOnce uploads the photo with the prompt and returns the decoded first image.
func (b *AzureEditBackend) EditOnce(ctx context.Context, image []byte, prompt string) ([]byte, error) {
	if b.endpoint == "" || !b.auth.Configured() {
		return nil, fmt.Errorf("vision: azure edit: %w", llm.ErrMissingCredentials)
	}

	body, contentType, err := buildEditForm(image, prompt, b.deployment)
	if err != nil {
		return nil, err
	}

	endpoint := llm.DeploymentURL(b.endpoint, b.deployment, "images/edits", b.apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("vision: azure edit request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := b.auth.Apply(req); err != nil {
		return nil, err
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: azure edit perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var failure struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		editErr := &EditError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if json.Unmarshal(raw, &failure) == nil && (failure.Error.Code != "" || failure.Error.Message != "") {
			editErr.Code = failure.Error.Code
			editErr.Message = failure.Error.Message
		}
		return nil, editErr
	}

	var payload struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("vision: azure edit decode response: %w", err)
	}
	if len(payload.Data) == 0 || payload.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("vision: azure edit response has no image data")
	}

	decoded, err := base64.StdEncoding.DecodeString(payload.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("vision: azure edit decode image: %w", err)
	}
	return decoded, nil
}

func buildEditForm(image []byte, prompt, deployment string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="building.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("vision: azure edit form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("vision: azure edit form: %w", err)
	}

	fields := [][2]string{
		{"prompt", prompt},
		{"model", deployment},
		{"size", "auto"},
		{"quality", "medium"},
		{"n", "1"},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("vision: azure edit form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("vision: azure edit form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
