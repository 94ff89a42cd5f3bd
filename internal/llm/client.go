package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingCredentials is returned when a provider client was built without credentials.
var ErrMissingCredentials = errors.New("llm: missing provider credentials")

// Image is an inline image attached to a chat turn.
type Image struct {
	Data     []byte
	MIMEType string
}

// ChatMessage represents a generic chat turn. Images are only honoured on user turns.
type ChatMessage struct {
	Role   string
	Text   string
	Images []Image
}

// Options tune a single completion request.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client defines the behaviour required by the vision package.
type Client interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage, opts Options) (string, error)
}

// DetectMIME sniffs the image type, defaulting to PNG for unknown payloads.
func DetectMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/png"
}
