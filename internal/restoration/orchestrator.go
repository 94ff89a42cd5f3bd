package restoration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"archRenew/internal/events"
	"archRenew/internal/logging"
	"archRenew/internal/media"
	"archRenew/internal/metrics"
	"archRenew/internal/prompts"
	"archRenew/internal/storage"
	"archRenew/internal/vision"
)

// Request is one restoration job as received from a caller.
type Request struct {
	Image   []byte
	Options storage.Options
	Address string
	Lat     string
	Lon     string
}

// Analyzer describes a building photo. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) vision.Analysis
}

// Planner writes the restoration plan.
type Planner interface {
	Plan(ctx context.Context, prompt, analysis string) (string, error)
}

// Editor renders the restored building. It never fails.
type Editor interface {
	Edit(ctx context.Context, original []byte, plan string) vision.EditResult
}

// Notifier receives pipeline stage transitions.
type Notifier interface {
	Publish(evt events.Event)
}

// Credentials reports which provider keys are missing.
type Credentials interface {
	MissingCredentials() []string
	RequiredKeys() []string
}

// Options wires an Orchestrator. Analyzer, Planner, Editor, Store and
// Credentials are required; the rest are optional.
type Options struct {
	Analyzer    Analyzer
	Planner     Planner
	Editor      Editor
	Store       storage.ResultStore
	Credentials Credentials
	Uploader    media.Uploader
	Notifier    Notifier
	Logger      *zerolog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
	NewID       func() string
}

// Orchestrator runs analysis, planning and editing for one image and persists
// the outcome. Remote failures degrade the record instead of failing the run.
type Orchestrator struct {
	analyzer Analyzer
	planner  Planner
	editor   Editor
	store    storage.ResultStore
	creds    Credentials
	uploader media.Uploader
	notifier Notifier
	log      zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

// NewOrchestrator constructs an orchestrator from opts.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		analyzer: opts.Analyzer,
		planner:  opts.Planner,
		editor:   opts.Editor,
		store:    opts.Store,
		creds:    opts.Credentials,
		uploader: opts.Uploader,
		notifier: opts.Notifier,
		log:      logging.OrNop(opts.Logger).With().Str("component", "orchestrator").Logger(),
		metrics:  opts.Metrics,
		now:      opts.Now,
		newID:    opts.NewID,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newID == nil {
		o.newID = NewID
	}
	return o
}

// NewID returns a 32 character hex token.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Run executes the pipeline. It returns ErrEmptyImage, *ConfigurationError or
// *PipelineError; vision, plan and edit failures only degrade the record.
func (o *Orchestrator) Run(ctx context.Context, req Request) (rec storage.Restoration, err error) {
	if len(req.Image) == 0 {
		o.metrics.Outcome("rejected")
		return storage.Restoration{}, ErrEmptyImage
	}
	if o.creds != nil {
		if missing := o.creds.MissingCredentials(); len(missing) > 0 {
			o.log.Warn().Strs("missing", missing).Msg("restoration refused, provider credentials missing")
			o.metrics.Outcome("unconfigured")
			return storage.Restoration{}, newConfigurationError(missing, o.creds.RequiredKeys())
		}
	}

	id := o.newID()
	log := o.log.With().Str("restoration_id", id).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("restoration pipeline panicked")
			o.notify(id, events.StageFailed, nil)
			o.metrics.Outcome("failed")
			rec = storage.Restoration{}
			err = &PipelineError{ID: id, Message: fmt.Sprint(r)}
		}
	}()

	o.notify(id, events.StageReceived, nil)

	opts := req.Options
	style, known := ParseStyle(opts.Style)
	if !known {
		log.Info().Str("requested", opts.Style).Str("style", style).Msg("unknown style, using default")
	}
	opts.Style = style

	o.notify(id, events.StageAnalyzing, nil)
	analysis := o.analyzer.Analyze(ctx, req.Image)
	prompt := prompts.BuildRestorationPrompt(analysis.Text, opts)

	diagnostics := storage.Diagnostics{
		AnalysisDegraded: analysis.Degraded,
		AnalysisCached:   analysis.Cached,
	}

	o.notify(id, events.StagePlanning, nil)
	plan, planErr := o.planner.Plan(ctx, prompt, analysis.Text)
	if planErr != nil {
		log.Warn().Err(planErr).Msg("plan generation failed, using templated plan")
		o.metrics.Degraded("plan")
		plan = prompts.FallbackPlan(opts.Style)
		diagnostics.PlanFallback = true
	}

	o.notify(id, events.StageEditing, nil)
	edit := o.editor.Edit(ctx, req.Image, plan)
	restored := edit.Image
	if len(restored) == 0 {
		restored = req.Image
	}
	success := !bytes.Equal(restored, req.Image)
	diagnostics.EditAttempts = edit.Attempts
	if edit.Err != nil {
		diagnostics.EditError = edit.Err.Error()
	}

	location := ParseLocation(req.Lat, req.Lon)
	if location == nil && (strings.TrimSpace(req.Lat) != "" || strings.TrimSpace(req.Lon) != "") {
		log.Debug().Str("lat", req.Lat).Str("lon", req.Lon).Msg("ignoring incomplete or invalid coordinates")
	}

	rec = storage.Restoration{
		ID:            id,
		OriginalImage: req.Image,
		RestoredImage: restored,
		Prompt:        prompt,
		Analysis:      analysis.Text,
		Plan:          plan,
		Options:       opts,
		Success:       success,
		Address:       req.Address,
		Location:      location,
		Diagnostics:   diagnostics,
		CreatedAt:     o.now().UTC(),
	}
	rec.Media = o.archive(ctx, log, id, req.Image, restored, success)

	if err := o.store.Put(ctx, rec); err != nil {
		log.Error().Err(err).Msg("failed to store restoration result")
		o.notify(id, events.StageFailed, nil)
		o.metrics.Outcome("failed")
		return storage.Restoration{}, &PipelineError{ID: id, Message: "could not store restoration result", Err: err}
	}

	o.notify(id, events.StagePersisted, &success)
	if success {
		o.metrics.Outcome("restored")
	} else {
		o.metrics.Outcome("unchanged")
	}
	log.Info().
		Bool("restoration_success", success).
		Bool("analysis_degraded", diagnostics.AnalysisDegraded).
		Bool("plan_fallback", diagnostics.PlanFallback).
		Int("edit_attempts", diagnostics.EditAttempts).
		Msg("restoration stored")
	return rec, nil
}

// archive copies both images to the media store. Failures are logged and
// leave the corresponding reference empty.
func (o *Orchestrator) archive(ctx context.Context, log zerolog.Logger, id string, original, restored []byte, success bool) storage.MediaRefs {
	if media.IsDisabled(o.uploader) {
		return storage.MediaRefs{}
	}

	var originalRes, restoredRes media.UploadResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := o.upload(gctx, id, "original", original)
		if err != nil {
			return fmt.Errorf("archive original: %w", err)
		}
		originalRes = res
		return nil
	})
	if success {
		g.Go(func() error {
			res, err := o.upload(gctx, id, "restored", restored)
			if err != nil {
				return fmt.Errorf("archive restored: %w", err)
			}
			restoredRes = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("image archive incomplete")
	}

	refs := storage.MediaRefs{
		OriginalKey: originalRes.Key,
		OriginalURL: originalRes.URL,
		RestoredKey: restoredRes.Key,
		RestoredURL: restoredRes.URL,
	}
	if !success {
		refs.RestoredKey, refs.RestoredURL = refs.OriginalKey, refs.OriginalURL
	}
	return refs
}

func (o *Orchestrator) upload(ctx context.Context, id, kind string, data []byte) (media.UploadResult, error) {
	contentType := http.DetectContentType(data)
	return o.uploader.Upload(ctx, media.UploadInput{
		Name:          id + "-" + kind + extensionFor(contentType),
		RestorationID: id,
		ContentType:   contentType,
		Body:          bytes.NewReader(data),
		Size:          int64(len(data)),
	})
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

func (o *Orchestrator) notify(id string, stage events.Stage, success *bool) {
	if o.notifier == nil {
		return
	}
	o.notifier.Publish(events.Event{RestorationID: id, Stage: stage, Success: success, At: o.now().UTC()})
}
