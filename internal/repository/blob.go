package repository

import (
	"context"
	"database/sql"
	"time"

	"neural-garden/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type BlobRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewBlobRepository(sqlDB *sql.DB, logger zerolog.Logger) *BlobRepository {
	return &BlobRepository{db: sqlDB, logger: logger}
}

// Create records a published archive. Records are never updated.
func (r *BlobRepository) Create(ctx context.Context, rec *domain.StoredBlobRecord) error {
	if rec.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return domain.Persistence("failed to generate blob record id", err)
		}
		rec.ID = id
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO stored_blobs (id, tournament_id, category, blob_id, created_at)
		VALUES (?, ?, ?, ?, ?)`, rec.ID, rec.TournamentID, rec.Category, rec.BlobID, rec.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("tournament_id", rec.TournamentID).Msg("failed to record stored blob")
		return domain.Persistence("failed to record stored blob", err)
	}
	return nil
}

func (r *BlobRepository) ListByTournament(ctx context.Context, tournamentID string) ([]domain.StoredBlobRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, tournament_id, category, blob_id, created_at
		FROM stored_blobs WHERE tournament_id = ? ORDER BY created_at`, tournamentID)
	if err != nil {
		return nil, domain.Persistence("failed to list stored blobs", err)
	}
	defer rows.Close()

	var out []domain.StoredBlobRecord
	for rows.Next() {
		var rec domain.StoredBlobRecord
		if err := rows.Scan(&rec.ID, &rec.TournamentID, &rec.Category, &rec.BlobID, &rec.CreatedAt); err != nil {
			return nil, domain.Persistence("failed to scan stored blob", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
