package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// AvailabilityRepository persists teacher availability per slot.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new availability repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

func (r *AvailabilityRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert stores the flag for a slot, the latest write wins.
func (r *AvailabilityRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, availability *models.Availability) error {
	availability.UpdatedAt = time.Now().UTC()

	const query = `
INSERT INTO teacher_availability (teacher_id, day, block_id, available, updated_at)
VALUES (:teacher_id, :day, :block_id, :available, :updated_at)
ON CONFLICT (teacher_id, day, block_id) DO UPDATE
SET available = EXCLUDED.available,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, availability); err != nil {
		return fmt.Errorf("upsert teacher availability: %w", err)
	}
	return nil
}

// Get loads the record for one slot, returning sql.ErrNoRows when none was declared.
func (r *AvailabilityRepository) Get(ctx context.Context, teacherID string, day models.Day, blockID int) (*models.Availability, error) {
	const query = `SELECT teacher_id, day, block_id, available, updated_at FROM teacher_availability WHERE teacher_id = $1 AND day = $2 AND block_id = $3`
	var availability models.Availability
	if err := r.db.GetContext(ctx, &availability, query, teacherID, day, blockID); err != nil {
		return nil, err
	}
	return &availability, nil
}

// ListByTeacher returns all declared records of a teacher.
func (r *AvailabilityRepository) ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.Availability, error) {
	const query = `SELECT teacher_id, day, block_id, available, updated_at FROM teacher_availability WHERE teacher_id = $1 ORDER BY day ASC, block_id ASC`
	var records []models.Availability
	if err := sqlx.SelectContext(ctx, r.exec(exec), &records, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher availability: %w", err)
	}
	return records, nil
}
