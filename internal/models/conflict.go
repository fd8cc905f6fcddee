package models

import "fmt"

// ConflictKind identifies which booking rule a candidate assignment breaks.
type ConflictKind string

const (
	ConflictGroupSlotTaken     ConflictKind = "GROUP_SLOT_TAKEN"
	ConflictTeacherSlotTaken   ConflictKind = "TEACHER_SLOT_TAKEN"
	ConflictTeacherUnavailable ConflictKind = "TEACHER_UNAVAILABLE"
)

// ConflictError is returned when a candidate assignment collides with the book or availability.
type ConflictError struct {
	Kind                 ConflictKind `json:"kind"`
	Day                  Day          `json:"day"`
	BlockID              int          `json:"block_id"`
	GroupID              string       `json:"group_id,omitempty"`
	TeacherID            string       `json:"teacher_id,omitempty"`
	ExistingAssignmentID string       `json:"existing_assignment_id,omitempty"`
}

func (e *ConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	slot := Slot{Day: e.Day, BlockID: e.BlockID}
	switch e.Kind {
	case ConflictGroupSlotTaken:
		return fmt.Sprintf("group %s already has an assignment at %s", e.GroupID, slot)
	case ConflictTeacherSlotTaken:
		return fmt.Sprintf("teacher %s already teaches at %s", e.TeacherID, slot)
	case ConflictTeacherUnavailable:
		return fmt.Sprintf("teacher %s is unavailable at %s", e.TeacherID, slot)
	}
	return fmt.Sprintf("conflict at %s", slot)
}

// EntityInUseError blocks deletion of a record still referenced by assignments.
type EntityInUseError struct {
	Kind       EntityKind `json:"kind"`
	ID         string     `json:"id"`
	References int        `json:"references"`
}

func (e *EntityInUseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s is referenced by %d assignment(s)", e.Kind, e.ID, e.References)
}
