package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists restorations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Put inserts the restoration. An existing id is never overwritten.
func (s *PostgresStore) Put(ctx context.Context, rec Restoration) error {
	options, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	diagnostics, err := json.Marshal(rec.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	media, err := json.Marshal(rec.Media)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}

	var lat, lon *float64
	if rec.Location != nil {
		lat, lon = &rec.Location.Lat, &rec.Location.Lon
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO restorations (id, original_image, restored_image, prompt, analysis, plan, options, success, address, latitude, longitude, diagnostics, media, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.OriginalImage, rec.RestoredImage, rec.Prompt, rec.Analysis, rec.Plan, options,
		rec.Success, rec.Address, lat, lon, diagnostics, media, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert restoration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateID
	}
	return nil
}

// Get loads a restoration by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Restoration, bool, error) {
	var (
		rec                         Restoration
		lat, lon                    *float64
		options, diagnostics, media []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, original_image, restored_image, prompt, analysis, plan, options, success, address, latitude, longitude, diagnostics, media, created_at
		 FROM restorations WHERE id = $1`, id).
		Scan(&rec.ID, &rec.OriginalImage, &rec.RestoredImage, &rec.Prompt, &rec.Analysis, &rec.Plan, &options,
			&rec.Success, &rec.Address, &lat, &lon, &diagnostics, &media, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Restoration{}, false, nil
		}
		return Restoration{}, false, fmt.Errorf("select restoration: %w", err)
	}

	if err := json.Unmarshal(options, &rec.Options); err != nil {
		return Restoration{}, false, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(diagnostics, &rec.Diagnostics); err != nil {
		return Restoration{}, false, fmt.Errorf("decode diagnostics: %w", err)
	}
	if err := json.Unmarshal(media, &rec.Media); err != nil {
		return Restoration{}, false, fmt.Errorf("decode media: %w", err)
	}
	if lat != nil && lon != nil {
		rec.Location = &Location{Lat: *lat, Lon: *lon}
	}
	return rec, true, nil
}

// Close releases database resources.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
