package service

import (
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// AvailabilityLookup answers whether a teacher may teach in a slot.
type AvailabilityLookup interface {
	IsAvailable(teacherID string, day models.Day, blockID int) bool
}

type availabilityKey struct {
	teacherID string
	day       models.Day
	blockID   int
}

// AvailabilityIndex is an in-memory AvailabilityLookup. Keys without a record are available.
type AvailabilityIndex map[availabilityKey]bool

// NewAvailabilityIndex indexes declared availability records.
func NewAvailabilityIndex(records []models.Availability) AvailabilityIndex {
	index := make(AvailabilityIndex, len(records))
	for _, r := range records {
		index[availabilityKey{teacherID: r.TeacherID, day: r.Day, blockID: r.BlockID}] = r.Available
	}
	return index
}

// IsAvailable implements AvailabilityLookup.
func (i AvailabilityIndex) IsAvailable(teacherID string, day models.Day, blockID int) bool {
	available, ok := i[availabilityKey{teacherID: teacherID, day: day, blockID: blockID}]
	return !ok || available
}

// ConflictChecker validates a candidate assignment against the book and teacher availability.
type ConflictChecker struct {
	grid *TimeGrid
}

// NewConflictChecker builds a checker over grid.
func NewConflictChecker(grid *TimeGrid) *ConflictChecker {
	return &ConflictChecker{grid: grid}
}

// Check runs, in order, coordinate validity, group slot, teacher slot and availability, returning the first failure.
// An entry of book with the candidate's id is ignored. Check never mutates its inputs.
func (c *ConflictChecker) Check(candidate models.Assignment, book []models.Assignment, availability AvailabilityLookup) error {
	if err := c.grid.validateCoordinate(candidate.Day, candidate.BlockID); err != nil {
		return err
	}

	var teacherClash *models.Assignment
	for i := range book {
		existing := &book[i]
		if candidate.ID != "" && existing.ID == candidate.ID {
			continue
		}
		if existing.Day != candidate.Day || existing.BlockID != candidate.BlockID {
			continue
		}
		if existing.GroupID == candidate.GroupID {
			return conflictError(models.ConflictGroupSlotTaken, candidate, existing.ID)
		}
		if existing.TeacherID == candidate.TeacherID && teacherClash == nil {
			teacherClash = existing
		}
	}
	if teacherClash != nil {
		return conflictError(models.ConflictTeacherSlotTaken, candidate, teacherClash.ID)
	}

	if availability != nil && !availability.IsAvailable(candidate.TeacherID, candidate.Day, candidate.BlockID) {
		return conflictError(models.ConflictTeacherUnavailable, candidate, "")
	}
	return nil
}

var conflictBases = map[models.ConflictKind]*appErrors.Error{
	models.ConflictGroupSlotTaken:     appErrors.ErrGroupSlotTaken,
	models.ConflictTeacherSlotTaken:   appErrors.ErrTeacherSlotTaken,
	models.ConflictTeacherUnavailable: appErrors.ErrTeacherUnavailable,
}

func conflictError(kind models.ConflictKind, candidate models.Assignment, existingID string) error {
	detail := &models.ConflictError{
		Kind:                 kind,
		Day:                  candidate.Day,
		BlockID:              candidate.BlockID,
		ExistingAssignmentID: existingID,
	}
	switch kind {
	case models.ConflictGroupSlotTaken:
		detail.GroupID = candidate.GroupID
	default:
		detail.TeacherID = candidate.TeacherID
	}
	return appErrors.WithDetails(conflictBases[kind], detail.Error(), detail)
}
