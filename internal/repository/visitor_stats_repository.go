package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"techblog/internal/domain"
	"techblog/pkg/database"
)

// CreateStatements create the visitor_stats table, in order
var CreateStatements = []string{
	`CREATE TABLE IF NOT EXISTS visitor_stats (
		id BIGSERIAL PRIMARY KEY,
		date DATE NOT NULL UNIQUE,
		visitor_count BIGINT NOT NULL DEFAULT 0,
		unique_visitor_count BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visitor_stats_date_desc ON visitor_stats (date DESC)`,
}

// DropStatements remove everything CreateStatements creates
var DropStatements = []string{
	`DROP TABLE IF EXISTS visitor_stats CASCADE`,
}

const visitorStatsColumns = `id, date, visitor_count, unique_visitor_count, created_at, updated_at`

// visitorStatsRepository stores reconciled per-date counts in PostgreSQL
type visitorStatsRepository struct {
	db *database.PostgresDB
}

// NewVisitorStatsRepository creates a new visitor stats repository
func NewVisitorStatsRepository(db *database.PostgresDB) VisitorStatsRepository {
	return &visitorStatsRepository{
		db: db,
	}
}

// Upsert inserts or overwrites the row for date. xmax is zero only for a
// freshly inserted tuple, which tells created from updated in one round trip.
func (r *visitorStatsRepository) Upsert(ctx context.Context, date time.Time, visitorCount, uniqueVisitorCount int64) (*domain.VisitorStatsRecord, bool, error) {
	query := `
		INSERT INTO visitor_stats (date, visitor_count, unique_visitor_count, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE SET
			visitor_count = EXCLUDED.visitor_count,
			unique_visitor_count = EXCLUDED.unique_visitor_count,
			updated_at = NOW()
		RETURNING ` + visitorStatsColumns + `, (xmax = 0) AS inserted
	`

	record := &domain.VisitorStatsRecord{}
	var inserted bool
	err := r.db.Pool.QueryRow(ctx, query,
		domain.FormatDate(date),
		visitorCount,
		uniqueVisitorCount,
	).Scan(
		&record.ID,
		&record.Date,
		&record.VisitorCount,
		&record.UniqueVisitorCount,
		&record.CreatedAt,
		&record.UpdatedAt,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert visitor stats for %s: %w", domain.FormatDate(date), err)
	}

	return record, inserted, nil
}

// GetByDate retrieves the row for a specific date
func (r *visitorStatsRepository) GetByDate(ctx context.Context, date time.Time) (*domain.VisitorStatsRecord, error) {
	query := `SELECT ` + visitorStatsColumns + ` FROM visitor_stats WHERE date = $1`

	record := &domain.VisitorStatsRecord{}
	err := r.db.GetReadPool().QueryRow(ctx, query, domain.FormatDate(date)).Scan(
		&record.ID,
		&record.Date,
		&record.VisitorCount,
		&record.UniqueVisitorCount,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get visitor stats for %s: %w", domain.FormatDate(date), err)
	}

	return record, nil
}

// SumUniqueVisitors aggregates all rows and checks for today's row in one query
func (r *visitorStatsRepository) SumUniqueVisitors(ctx context.Context, today time.Time) (int64, bool, error) {
	query := `
		SELECT COALESCE(SUM(unique_visitor_count), 0)::BIGINT,
		       COALESCE(BOOL_OR(date = $1), false)
		FROM visitor_stats
	`

	var sum int64
	var hasToday bool
	err := r.db.GetReadPool().QueryRow(ctx, query, domain.FormatDate(today)).Scan(&sum, &hasToday)
	if err != nil {
		return 0, false, fmt.Errorf("failed to sum unique visitors: %w", err)
	}

	return sum, hasToday, nil
}

// ListRange retrieves rows within an inclusive date range
func (r *visitorStatsRepository) ListRange(ctx context.Context, from, to time.Time) ([]*domain.VisitorStatsRecord, error) {
	query := `
		SELECT ` + visitorStatsColumns + `
		FROM visitor_stats
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC
	`

	rows, err := r.db.GetReadPool().Query(ctx, query,
		domain.FormatDate(from),
		domain.FormatDate(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query visitor stats range: %w", err)
	}
	defer rows.Close()

	records := []*domain.VisitorStatsRecord{}
	for rows.Next() {
		record := &domain.VisitorStatsRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Date,
			&record.VisitorCount,
			&record.UniqueVisitorCount,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visitor stats row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading visitor stats rows: %w", err)
	}

	return records, nil
}
