package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const versionColumns = `id, version, created_at, published_by, active`

// PublicationRepository stores published timetable versions and their snapshots.
type PublicationRepository struct {
	db *sqlx.DB
}

// NewPublicationRepository creates a new publication repository.
func NewPublicationRepository(db *sqlx.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

func (r *PublicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// NextVersion returns the version number the next publication will carry.
func (r *PublicationRepository) NextVersion(ctx context.Context, exec sqlx.ExtContext) (int, error) {
	var next int
	if err := sqlx.GetContext(ctx, r.exec(exec), &next, `SELECT COALESCE(MAX(version), 0) + 1 FROM published_versions`); err != nil {
		return 0, fmt.Errorf("next published version: %w", err)
	}
	return next, nil
}

// DeactivateActive flips the current active version, if any, to inactive.
func (r *PublicationRepository) DeactivateActive(ctx context.Context, exec sqlx.ExtContext) error {
	if _, err := r.exec(exec).ExecContext(ctx, `UPDATE published_versions SET active = FALSE WHERE active`); err != nil {
		return fmt.Errorf("deactivate published version: %w", err)
	}
	return nil
}

// Create stores version metadata.
func (r *PublicationRepository) Create(ctx context.Context, exec sqlx.ExtContext, version *models.PublishedVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO published_versions (id, version, created_at, published_by, active) VALUES (:id, :version, :created_at, :published_by, :active)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, version); err != nil {
		return fmt.Errorf("create published version: %w", err)
	}
	return nil
}

// InsertEntries copies snapshot rows for a version.
func (r *PublicationRepository) InsertEntries(ctx context.Context, exec sqlx.ExtContext, entries []models.PublishedAssignment) error {
	const query = `INSERT INTO published_assignments (id, version_id, assignment_id, group_id, teacher_id, subject_id, day, block_id) VALUES (:id, :version_id, :assignment_id, :group_id, :teacher_id, :subject_id, :day, :block_id)`
	target := r.exec(exec)
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry); err != nil {
			return fmt.Errorf("insert published assignment: %w", err)
		}
	}
	return nil
}

// FindActive loads the active version metadata, returning sql.ErrNoRows before the first publication.
func (r *PublicationRepository) FindActive(ctx context.Context) (*models.PublishedVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM published_versions WHERE active`
	var version models.PublishedVersion
	if err := r.db.GetContext(ctx, &version, query); err != nil {
		return nil, err
	}
	return &version, nil
}

// FindByID loads version metadata by id.
func (r *PublicationRepository) FindByID(ctx context.Context, id string) (*models.PublishedVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM published_versions WHERE id = $1`
	var version models.PublishedVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// List returns every version, newest first.
func (r *PublicationRepository) List(ctx context.Context) ([]models.PublishedVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM published_versions ORDER BY version DESC`
	var versions []models.PublishedVersion
	if err := r.db.SelectContext(ctx, &versions, query); err != nil {
		return nil, fmt.Errorf("list published versions: %w", err)
	}
	return versions, nil
}

// ListEntries returns the snapshot rows of a version.
func (r *PublicationRepository) ListEntries(ctx context.Context, versionID string) ([]models.PublishedAssignment, error) {
	const query = `SELECT id, version_id, assignment_id, group_id, teacher_id, subject_id, day, block_id FROM published_assignments WHERE version_id = $1 ORDER BY day ASC, block_id ASC, group_id ASC`
	var entries []models.PublishedAssignment
	if err := r.db.SelectContext(ctx, &entries, query, versionID); err != nil {
		return nil, fmt.Errorf("list published assignments: %w", err)
	}
	return entries, nil
}
