package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Constraint names backing the double-booking rules in storage.
const (
	ConstraintGroupSlot   = "timetable_assignments_group_slot_key"
	ConstraintTeacherSlot = "timetable_assignments_teacher_slot_key"
)

const assignmentColumns = `id, group_id, teacher_id, subject_id, day, block_id, created_at, updated_at`

// AssignmentRepository provides persistence for the working timetable.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListAll returns the whole book.
func (r *AssignmentRepository) ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM timetable_assignments ORDER BY day ASC, block_id ASC, group_id ASC`
	var assignments []models.Assignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// ListBySlot returns assignments sharing a day and block, the only ones a candidate can collide with.
func (r *AssignmentRepository) ListBySlot(ctx context.Context, exec sqlx.ExtContext, day models.Day, blockID int) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM timetable_assignments WHERE day = $1 AND block_id = $2`
	var assignments []models.Assignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, day, blockID); err != nil {
		return nil, fmt.Errorf("list assignments by slot: %w", err)
	}
	return assignments, nil
}

// ListByGroup returns a group's assignments.
func (r *AssignmentRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM timetable_assignments WHERE group_id = $1`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, groupID); err != nil {
		return nil, fmt.Errorf("list assignments by group: %w", err)
	}
	return assignments, nil
}

// ListByTeacher returns the assignments taught by a teacher.
func (r *AssignmentRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM timetable_assignments WHERE teacher_id = $1`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, teacherID); err != nil {
		return nil, fmt.Errorf("list assignments by teacher: %w", err)
	}
	return assignments, nil
}

// FindByID loads an assignment by id.
func (r *AssignmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM timetable_assignments WHERE id = $1`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create stores a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = now
	}
	assignment.UpdatedAt = now

	const query = `INSERT INTO timetable_assignments (id, group_id, teacher_id, subject_id, day, block_id, created_at, updated_at) VALUES (:id, :group_id, :teacher_id, :subject_id, :day, :block_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update rewrites an assignment in place.
func (r *AssignmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetable_assignments SET group_id = :group_id, teacher_id = :teacher_id, subject_id = :subject_id, day = :day, block_id = :block_id, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	return requireAffected(res)
}

// Delete removes an assignment, returning sql.ErrNoRows when nothing matched.
func (r *AssignmentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM timetable_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return requireAffected(res)
}

// CountByEntity counts assignments referencing a teacher, group or subject.
func (r *AssignmentRepository) CountByEntity(ctx context.Context, kind models.EntityKind, id string) (int, error) {
	column, ok := assignmentEntityColumns[kind]
	if !ok {
		return 0, fmt.Errorf("unknown entity kind %q", kind)
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM timetable_assignments WHERE %s = $1`, column)
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count assignments by %s: %w", kind, err)
	}
	return count, nil
}

var assignmentEntityColumns = map[models.EntityKind]string{
	models.EntityTeacher: "teacher_id",
	models.EntityGroup:   "group_id",
	models.EntitySubject: "subject_id",
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
