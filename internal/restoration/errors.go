package restoration

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyImage is returned when a request carries no image bytes.
var ErrEmptyImage = errors.New("no image data provided")

// ConfigurationError reports missing provider credentials. No restoration id
// is allocated when it is returned.
type ConfigurationError struct {
	Missing []string
	Help    string
}

func (e *ConfigurationError) Error() string {
	return "AI provider credentials not found: " + strings.Join(e.Missing, ", ")
}

func newConfigurationError(missing, required []string) *ConfigurationError {
	return &ConfigurationError{
		Missing: missing,
		Help:    fmt.Sprintf("Set %s environment variables", joinKeys(required)),
	}
}

func joinKeys(keys []string) string {
	switch len(keys) {
	case 0:
		return "the provider"
	case 1:
		return keys[0]
	}
	return strings.Join(keys[:len(keys)-1], ", ") + " and " + keys[len(keys)-1]
}

// PipelineHelp accompanies every PipelineError in HTTP responses.
const PipelineHelp = "Please check your AI provider credentials and model deployments"

// PipelineError is an unexpected failure after the restoration id was allocated.
type PipelineError struct {
	ID      string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("Restoration planning failed: %s", e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
