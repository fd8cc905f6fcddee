package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimeBlockRepository reads the seeded teaching periods.
type TimeBlockRepository struct {
	db *sqlx.DB
}

// NewTimeBlockRepository creates a new time block repository.
func NewTimeBlockRepository(db *sqlx.DB) *TimeBlockRepository {
	return &TimeBlockRepository{db: db}
}

// List returns every block ordered by start time.
func (r *TimeBlockRepository) List(ctx context.Context) ([]models.TimeBlock, error) {
	const query = `SELECT id, label, to_char(starts_at, 'HH24:MI') AS starts_at, to_char(ends_at, 'HH24:MI') AS ends_at FROM time_blocks ORDER BY starts_at ASC, id ASC`
	var blocks []models.TimeBlock
	if err := r.db.SelectContext(ctx, &blocks, query); err != nil {
		return nil, fmt.Errorf("list time blocks: %w", err)
	}
	return blocks, nil
}
