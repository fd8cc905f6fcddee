package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type availabilityRepository interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, availability *models.Availability) error
	Get(ctx context.Context, teacherID string, day models.Day, blockID int) (*models.Availability, error)
	ListByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) ([]models.Availability, error)
}

type entityRepository interface {
	Exists(ctx context.Context, exec sqlx.ExtContext, kind models.EntityKind, id string) (bool, error)
}

// SetAvailabilityRequest is the payload for declaring one slot.
type SetAvailabilityRequest struct {
	Day       string `json:"day" validate:"required"`
	BlockID   int    `json:"block_id" validate:"required,min=1"`
	Available *bool  `json:"available" validate:"required"`
}

// AvailabilityService stores teacher-declared availability.
type AvailabilityService struct {
	grid      *TimeGrid
	repo      availabilityRepository
	entities  entityRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAvailabilityService instantiates AvailabilityService.
func NewAvailabilityService(grid *TimeGrid, repo availabilityRepository, entities entityRepository, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{grid: grid, repo: repo, entities: entities, validator: validate, logger: logger}
}

// Declare applies a request on behalf of principal. Only managers or the teacher themself may declare.
func (s *AvailabilityService) Declare(ctx context.Context, principal models.Principal, teacherID string, req SetAvailabilityRequest) (*models.Availability, error) {
	if !principal.CanEditAvailability(teacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to change this teacher's availability")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	day, err := parseDay(req.Day)
	if err != nil {
		return nil, err
	}
	if err := s.SetAvailability(ctx, teacherID, day, req.BlockID, *req.Available); err != nil {
		return nil, err
	}
	return &models.Availability{TeacherID: teacherID, Day: day, BlockID: req.BlockID, Available: *req.Available}, nil
}

// SetAvailability upserts the flag for a slot, the latest write wins.
func (s *AvailabilityService) SetAvailability(ctx context.Context, teacherID string, day models.Day, blockID int, available bool) error {
	if teacherID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "teacher id is required")
	}
	if err := s.grid.validateCoordinate(day, blockID); err != nil {
		return err
	}
	exists, err := s.entities.Exists(ctx, nil, models.EntityTeacher, teacherID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to verify teacher")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", teacherID))
	}

	record := &models.Availability{TeacherID: teacherID, Day: day, BlockID: blockID, Available: available}
	if err := s.repo.Upsert(ctx, nil, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to store availability")
	}
	s.logger.Debug("availability declared",
		zap.String("teacher_id", teacherID),
		zap.String("day", string(day)),
		zap.Int("block_id", blockID),
		zap.Bool("available", available),
	)
	return nil
}

// IsAvailable defaults to true when the teacher declared nothing for the slot.
func (s *AvailabilityService) IsAvailable(ctx context.Context, teacherID string, day models.Day, blockID int) (bool, error) {
	if err := s.grid.validateCoordinate(day, blockID); err != nil {
		return false, err
	}
	record, err := s.repo.Get(ctx, teacherID, day, blockID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load availability")
	}
	return record.Available, nil
}

// ListForTeacher returns the explicit declarations of a teacher.
func (s *AvailabilityService) ListForTeacher(ctx context.Context, teacherID string) ([]models.Availability, error) {
	records, err := s.repo.ListByTeacher(ctx, nil, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list availability")
	}
	if records == nil {
		records = []models.Availability{}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return s.grid.less(models.Slot{Day: records[i].Day, BlockID: records[i].BlockID}, models.Slot{Day: records[j].Day, BlockID: records[j].BlockID})
	})
	return records, nil
}
