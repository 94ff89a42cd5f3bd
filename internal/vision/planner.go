package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"archRenew/internal/llm"
	"archRenew/internal/logging"
	"archRenew/internal/metrics"
	"archRenew/internal/prompts"
)

const (
	planMaxTokens   = 1500
	planTemperature = 0.7
)

// PlannerOptions configures a Planner.
type PlannerOptions struct {
	Client  llm.Client
	Timeout time.Duration
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Planner writes the narrative restoration plan.
type Planner struct {
	client  llm.Client
	timeout time.Duration
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewPlanner constructs a planner backed by the given chat client.
func NewPlanner(opts PlannerOptions) *Planner {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Planner{
		client:  opts.Client,
		timeout: timeout,
		log:     logging.OrNop(opts.Logger).With().Str("component", "planner").Logger(),
		metrics: opts.Metrics,
	}
}

// Plan asks the model for a five-section restoration proposal. Errors are
// returned to the caller, which owns the fallback.
func (p *Planner) Plan(ctx context.Context, prompt, analysis string) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("vision: plan: %w", llm.ErrMissingCredentials)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	content, err := p.client.ChatCompletion(callCtx, []llm.ChatMessage{
		{Role: "user", Text: prompts.BuildPlanPrompt(analysis, prompt)},
	}, llm.Options{MaxTokens: planMaxTokens, Temperature: planTemperature})
	p.metrics.ObserveCall("plan", started)
	if err != nil {
		return "", fmt.Errorf("vision: plan: %w", err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("vision: plan: empty response")
	}
	p.log.Debug().Int("chars", len(content)).Msg("restoration plan generated")
	return content, nil
}
