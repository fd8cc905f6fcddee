package models

import "time"

// Assignment places a teacher and subject in a group's slot.
type Assignment struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Day       Day       `db:"day" json:"day"`
	BlockID   int       `db:"block_id" json:"block_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Slot returns the grid coordinate of the assignment.
func (a Assignment) Slot() Slot {
	return Slot{Day: a.Day, BlockID: a.BlockID}
}

// Availability records whether a teacher can teach in a slot. Missing records mean available.
type Availability struct {
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Day       Day       `db:"day" json:"day"`
	BlockID   int       `db:"block_id" json:"block_id"`
	Available bool      `db:"available" json:"available"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EntityKind names the records an assignment references.
type EntityKind string

const (
	EntityTeacher EntityKind = "teacher"
	EntityGroup   EntityKind = "group"
	EntitySubject EntityKind = "subject"
)

// Valid reports whether k is a known entity kind.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityTeacher, EntityGroup, EntitySubject:
		return true
	}
	return false
}

// EntityUsage reports how many assignments reference an entity.
type EntityUsage struct {
	Kind       EntityKind `json:"kind"`
	ID         string     `json:"id"`
	InUse      bool       `json:"in_use"`
	References int        `json:"references"`
}
