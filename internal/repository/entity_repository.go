package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var entityTables = map[models.EntityKind]string{
	models.EntityTeacher: "teachers",
	models.EntityGroup:   "student_groups",
	models.EntitySubject: "subjects",
}

// EntityRepository checks records owned by the administrative CRUD layer.
type EntityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository creates a new entity repository.
func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Exists reports whether the referenced record is present.
func (r *EntityRepository) Exists(ctx context.Context, exec sqlx.ExtContext, kind models.EntityKind, id string) (bool, error) {
	table, ok := entityTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown entity kind %q", kind)
	}
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	var exists bool
	if err := sqlx.GetContext(ctx, exec, &exists, query, id); err != nil {
		return false, fmt.Errorf("check %s exists: %w", kind, err)
	}
	return exists, nil
}
