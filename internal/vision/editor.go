package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"archRenew/internal/logging"
	"archRenew/internal/metrics"
	"archRenew/internal/prompts"
)

// CodeModerationBlocked is the provider error code for a safety-filter refusal.
const CodeModerationBlocked = "moderation_blocked"

// EditError is a structured provider failure from an image edit request.
type EditError struct {
	Status  int
	Code    string
	Message string
}

func (e *EditError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("image edit failed (status %d, code %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("image edit failed (status %d): %s", e.Status, e.Message)
}

// IsModerationBlocked reports whether err carries the moderation_blocked code.
func IsModerationBlocked(err error) bool {
	var editErr *EditError
	return errors.As(err, &editErr) && editErr.Code == CodeModerationBlocked
}

// EditBackend performs exactly one remote image edit.
type EditBackend interface {
	EditOnce(ctx context.Context, image []byte, prompt string) ([]byte, error)
}

// EditResult is the outcome of Edit. When Edited is false Image holds the
// original bytes and Err the last failure, if any.
type EditResult struct {
	Image    []byte
	Edited   bool
	Attempts int
	Err      error
}

// EditorOptions configures an Editor.
type EditorOptions struct {
	Backend    EditBackend
	RetryDelay time.Duration
	Timeout    time.Duration
	Logger     *zerolog.Logger
	Metrics    *metrics.Metrics
}

// Editor turns the restoration plan into an edited photo of the building.
type Editor struct {
	backend    EditBackend
	retryDelay time.Duration
	timeout    time.Duration
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// NewEditor constructs an editor. A negative retry delay disables the wait.
func NewEditor(opts EditorOptions) *Editor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	delay := opts.RetryDelay
	if delay < 0 {
		delay = 0
	}
	return &Editor{
		backend:    opts.Backend,
		retryDelay: delay,
		timeout:    timeout,
		log:        logging.OrNop(opts.Logger).With().Str("component", "editor").Logger(),
		metrics:    opts.Metrics,
	}
}

// Edit requests a restored rendering. A moderation block is retried once after
// the configured delay; every other failure returns the original image.
func (e *Editor) Edit(ctx context.Context, original []byte, plan string) (result EditResult) {
	result = EditResult{Image: original}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("image edit panicked, keeping original image")
			result = EditResult{Image: original, Attempts: result.Attempts, Err: fmt.Errorf("vision: edit panic: %v", r)}
		}
	}()

	if e.backend == nil {
		result.Err = errors.New("vision: edit backend not configured")
		e.log.Warn().Err(result.Err).Msg("image edit skipped")
		return result
	}

	prompt := prompts.BuildEditPrompt(plan)
	for {
		result.Attempts++
		e.metrics.EditAttempt()

		edited, err := e.attempt(ctx, original, prompt)
		if err == nil {
			result.Image = edited
			result.Edited = true
			result.Err = nil
			return result
		}
		result.Err = err

		if !IsModerationBlocked(err) || result.Attempts > 1 {
			e.log.Warn().Err(err).Int("attempts", result.Attempts).Msg("image edit failed, keeping original image")
			e.metrics.Degraded("edit")
			return result
		}

		e.log.Info().Dur("delay", e.retryDelay).Msg("image edit blocked by moderation, retrying once")
		e.metrics.ModerationRetry()
		if err := sleepContext(ctx, e.retryDelay); err != nil {
			result.Err = fmt.Errorf("vision: edit retry aborted: %w", err)
			e.metrics.Degraded("edit")
			return result
		}
	}
}

func (e *Editor) attempt(ctx context.Context, original []byte, prompt string) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	edited, err := e.backend.EditOnce(callCtx, original, prompt)
	e.metrics.ObserveCall("edit", started)
	if err != nil {
		return nil, err
	}
	if len(edited) == 0 {
		return nil, errors.New("vision: edit returned no image data")
	}
	return edited, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
