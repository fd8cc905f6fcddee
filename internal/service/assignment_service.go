package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type assignmentRepository interface {
	ListAll(ctx context.Context, exec sqlx.ExtContext) ([]models.Assignment, error)
	ListBySlot(ctx context.Context, exec sqlx.ExtContext, day models.Day, blockID int) ([]models.Assignment, error)
	ListByGroup(ctx context.Context, groupID string) ([]models.Assignment, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Assignment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error
	Update(ctx context.Context, exec sqlx.ExtContext, assignment *models.Assignment) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	CountByEntity(ctx context.Context, kind models.EntityKind, id string) (int, error)
}

// ProposeAssignmentRequest places a teacher and subject in a group's slot.
type ProposeAssignmentRequest struct {
	GroupID   string `json:"group_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
	SubjectID string `json:"subject_id" validate:"required"`
	Day       string `json:"day" validate:"required"`
	BlockID   int    `json:"block_id" validate:"required,min=1"`
}

// UpdateAssignmentRequest changes any subset of teacher, subject, day and block.
type UpdateAssignmentRequest struct {
	TeacherID *string `json:"teacher_id" validate:"omitempty,min=1"`
	SubjectID *string `json:"subject_id" validate:"omitempty,min=1"`
	Day       *string `json:"day" validate:"omitempty,min=1"`
	BlockID   *int    `json:"block_id" validate:"omitempty,min=1"`
}

// AssignmentService owns the working timetable.
type AssignmentService struct {
	grid         *TimeGrid
	checker      *ConflictChecker
	repo         assignmentRepository
	availability availabilityRepository
	entities     entityRepository
	tx           txRunner
	lock         *BookLock
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAssignmentService instantiates AssignmentService.
func NewAssignmentService(grid *TimeGrid, repo assignmentRepository, availability availabilityRepository, entities entityRepository, tx txRunner, lock *BookLock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NewBookLock(0, nil)
	}
	return &AssignmentService{
		grid:         grid,
		checker:      NewConflictChecker(grid),
		repo:         repo,
		availability: availability,
		entities:     entities,
		tx:           tx,
		lock:         lock,
		metrics:      metrics,
		validator:    validate,
		logger:       logger,
	}
}

// Propose validates and inserts an assignment. Nothing is written when any rule fails.
func (s *AssignmentService) Propose(ctx context.Context, req ProposeAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	day, err := parseDay(req.Day)
	if err != nil {
		return nil, err
	}

	candidate := models.Assignment{
		GroupID:   strings.TrimSpace(req.GroupID),
		TeacherID: strings.TrimSpace(req.TeacherID),
		SubjectID: strings.TrimSpace(req.SubjectID),
		Day:       day,
		BlockID:   req.BlockID,
	}
	if err := s.grid.validateCoordinate(candidate.Day, candidate.BlockID); err != nil {
		return nil, err
	}

	err = s.lock.Run(ctx, s.tx, func(exec sqlx.ExtContext) error {
		if err := s.ensureReferences(ctx, exec, map[models.EntityKind]string{
			models.EntityGroup:   candidate.GroupID,
			models.EntityTeacher: candidate.TeacherID,
			models.EntitySubject: candidate.SubjectID,
		}); err != nil {
			return err
		}
		if err := s.check(ctx, exec, candidate); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, exec, &candidate); err != nil {
			return s.storageError(err, candidate, "failed to create assignment")
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "propose")
	}

	s.metrics.RecordMutation("propose")
	s.logger.Info("assignment created",
		zap.String("assignment_id", candidate.ID),
		zap.String("group_id", candidate.GroupID),
		zap.String("teacher_id", candidate.TeacherID),
		zap.String("slot", candidate.Slot().String()),
	)
	return &candidate, nil
}

// Update merges the request into an assignment and re-validates it against every other assignment.
func (s *AssignmentService) Update(ctx context.Context, id string, req UpdateAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	var day models.Day
	if req.Day != nil {
		parsed, err := parseDay(*req.Day)
		if err != nil {
			return nil, err
		}
		day = parsed
	}

	var updated models.Assignment
	err := s.lock.Run(ctx, s.tx, func(exec sqlx.ExtContext) error {
		existing, err := s.repo.FindByID(ctx, exec, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load assignment")
		}

		updated = *existing
		refs := map[models.EntityKind]string{}
		if req.TeacherID != nil && *req.TeacherID != existing.TeacherID {
			updated.TeacherID = strings.TrimSpace(*req.TeacherID)
			refs[models.EntityTeacher] = updated.TeacherID
		}
		if req.SubjectID != nil && *req.SubjectID != existing.SubjectID {
			updated.SubjectID = strings.TrimSpace(*req.SubjectID)
			refs[models.EntitySubject] = updated.SubjectID
		}
		if req.Day != nil {
			updated.Day = day
		}
		if req.BlockID != nil {
			updated.BlockID = *req.BlockID
		}

		if err := s.grid.validateCoordinate(updated.Day, updated.BlockID); err != nil {
			return err
		}
		if err := s.ensureReferences(ctx, exec, refs); err != nil {
			return err
		}
		if err := s.check(ctx, exec, updated); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, exec, &updated); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
			}
			return s.storageError(err, updated, "failed to update assignment")
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "update")
	}

	s.metrics.RecordMutation("update")
	s.logger.Info("assignment updated", zap.String("assignment_id", updated.ID), zap.String("slot", updated.Slot().String()))
	return &updated, nil
}

// Remove deletes an assignment.
func (s *AssignmentService) Remove(ctx context.Context, id string) error {
	err := s.lock.Run(ctx, s.tx, func(exec sqlx.ExtContext) error {
		if err := s.repo.Delete(ctx, exec, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
			}
			return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to delete assignment")
		}
		return nil
	})
	if err != nil {
		return s.fail(err, "remove")
	}
	s.metrics.RecordMutation("remove")
	s.logger.Info("assignment removed", zap.String("assignment_id", id))
	return nil
}

// Get loads a single assignment.
func (s *AssignmentService) Get(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load assignment")
	}
	return assignment, nil
}

// ForGroup returns a group's week ordered by day then block start.
func (s *AssignmentService) ForGroup(ctx context.Context, groupID string) ([]models.Assignment, error) {
	items, err := s.repo.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list group assignments")
	}
	return s.ordered(items), nil
}

// ForTeacher returns a teacher's week ordered by day then block start.
func (s *AssignmentService) ForTeacher(ctx context.Context, teacherID string) ([]models.Assignment, error) {
	items, err := s.repo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list teacher assignments")
	}
	return s.ordered(items), nil
}

// Usage reports how many assignments reference an entity.
func (s *AssignmentService) Usage(ctx context.Context, kind models.EntityKind, id string) (*models.EntityUsage, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown entity kind %q", kind))
	}
	count, err := s.repo.CountByEntity(ctx, kind, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to count entity references")
	}
	return &models.EntityUsage{Kind: kind, ID: id, InUse: count > 0, References: count}, nil
}

// IsEntityInUse reports whether deleting the entity would orphan assignments.
func (s *AssignmentService) IsEntityInUse(ctx context.Context, kind models.EntityKind, id string) (bool, error) {
	usage, err := s.Usage(ctx, kind, id)
	if err != nil {
		return false, err
	}
	return usage.InUse, nil
}

// EnsureDeletable returns an ENTITY_IN_USE error while the entity is referenced.
func (s *AssignmentService) EnsureDeletable(ctx context.Context, kind models.EntityKind, id string) error {
	usage, err := s.Usage(ctx, kind, id)
	if err != nil {
		return err
	}
	if usage.InUse {
		detail := &models.EntityInUseError{Kind: kind, ID: id, References: usage.References}
		return appErrors.WithDetails(appErrors.ErrEntityInUse, detail.Error(), detail)
	}
	return nil
}

func (s *AssignmentService) check(ctx context.Context, exec sqlx.ExtContext, candidate models.Assignment) error {
	book, err := s.repo.ListBySlot(ctx, exec, candidate.Day, candidate.BlockID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load assignments")
	}
	records, err := s.availability.ListByTeacher(ctx, exec, candidate.TeacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load availability")
	}
	return s.checker.Check(candidate, book, NewAvailabilityIndex(records))
}

func (s *AssignmentService) ensureReferences(ctx context.Context, exec sqlx.ExtContext, refs map[models.EntityKind]string) error {
	for _, kind := range []models.EntityKind{models.EntityGroup, models.EntityTeacher, models.EntitySubject} {
		id, ok := refs[kind]
		if !ok {
			continue
		}
		exists, err := s.entities.Exists(ctx, exec, kind, id)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, fmt.Sprintf("failed to verify %s", kind))
		}
		if !exists {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s %s not found", kind, id))
		}
	}
	return nil
}

// storageError maps a unique index violation back onto the conflict it guards.
func (s *AssignmentService) storageError(err error, candidate models.Assignment, message string) error {
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case repository.ConstraintGroupSlot:
			return conflictError(models.ConflictGroupSlotTaken, candidate, "")
		case repository.ConstraintTeacherSlot:
			return conflictError(models.ConflictTeacherSlotTaken, candidate, "")
		}
	}
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, message)
}

// fail records conflicts and types any untyped failure as a persistence error.
func (s *AssignmentService) fail(err error, operation string) error {
	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		s.metrics.RecordConflict(conflict.Kind)
		s.logger.Info("assignment rejected", zap.String("operation", operation), zap.String("kind", string(conflict.Kind)), zap.String("slot", models.Slot{Day: conflict.Day, BlockID: conflict.BlockID}.String()))
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error("assignment mutation failed", zap.String("operation", operation), zap.Error(err))
	return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to "+operation+" assignment")
}

func (s *AssignmentService) ordered(items []models.Assignment) []models.Assignment {
	if items == nil {
		return []models.Assignment{}
	}
	s.grid.sortAssignments(items)
	return items
}

func parseDay(raw string) (models.Day, error) {
	day, err := models.ParseDay(raw)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return day, nil
}
