package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateID indicates that a restoration with the same id was already stored.
var ErrDuplicateID = errors.New("restoration id already stored")

// Restoration is the persisted outcome of one pipeline run. It is written
// exactly once and never modified afterwards.
type Restoration struct {
	ID            string      `json:"id"`
	OriginalImage []byte      `json:"original_image"`
	RestoredImage []byte      `json:"restored_image"`
	Prompt        string      `json:"prompt"`
	Analysis      string      `json:"analysis"`
	Plan          string      `json:"restoration_plan"`
	Options       Options     `json:"options"`
	Success       bool        `json:"restoration_success"`
	Address       string      `json:"address"`
	Location      *Location   `json:"location"`
	Diagnostics   Diagnostics `json:"diagnostics"`
	Media         MediaRefs   `json:"media,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Options are the user-selected restoration choices.
type Options struct {
	Style            string `json:"style"`
	PreserveHeritage bool   `json:"preserve_heritage"`
	Landscaping      bool   `json:"landscaping"`
	Lighting         bool   `json:"lighting"`
	ExpandBuilding   bool   `json:"expand_building"`
}

// Location is a geocoded coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Diagnostics records which pipeline stages degraded while producing the record.
type Diagnostics struct {
	AnalysisDegraded bool   `json:"analysis_degraded"`
	AnalysisCached   bool   `json:"analysis_cached"`
	PlanFallback     bool   `json:"plan_fallback"`
	EditAttempts     int    `json:"edit_attempts"`
	EditError        string `json:"edit_error,omitempty"`
}

// MediaRefs points at archived copies of the images, when archiving is enabled.
type MediaRefs struct {
	OriginalKey string `json:"original_key,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	RestoredKey string `json:"restored_key,omitempty"`
	RestoredURL string `json:"restored_url,omitempty"`
}

// ResultStore defines the persistence behaviors the application relies on.
// Get reports a missing id through found=false; err is reserved for backend failures.
type ResultStore interface {
	Put(ctx context.Context, rec Restoration) error
	Get(ctx context.Context, id string) (rec Restoration, found bool, err error)
	Close()
}

// NewStore selects a backing store based on whether a database URL is provided.
func NewStore(ctx context.Context, databaseURL string) (ResultStore, error) {
	if databaseURL == "" {
		return NewInMemoryStore(), nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS restorations (
        id TEXT PRIMARY KEY,
        original_image BYTEA NOT NULL,
        restored_image BYTEA NOT NULL,
        prompt TEXT NOT NULL,
        analysis TEXT NOT NULL,
        plan TEXT NOT NULL,
        options JSONB NOT NULL DEFAULT '{}'::jsonb,
        success BOOLEAN NOT NULL DEFAULT false,
        address TEXT NOT NULL DEFAULT '',
        latitude DOUBLE PRECISION,
        longitude DOUBLE PRECISION,
        diagnostics JSONB NOT NULL DEFAULT '{}'::jsonb,
        media JSONB NOT NULL DEFAULT '{}'::jsonb,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
	if err != nil {
		return fmt.Errorf("create restorations table: %w", err)
	}

	return nil
}
