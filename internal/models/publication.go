package models

import "time"

// PublishedVersion is an immutable snapshot of the assignment book.
type PublishedVersion struct {
	ID          string                `db:"id" json:"id"`
	Version     int                   `db:"version" json:"version"`
	CreatedAt   time.Time             `db:"created_at" json:"created_at"`
	PublishedBy string                `db:"published_by" json:"published_by"`
	Active      bool                  `db:"active" json:"active"`
	Entries     []PublishedAssignment `db:"-" json:"entries,omitempty"`
}

// PublishedAssignment is a by-value copy of an assignment frozen into a version.
type PublishedAssignment struct {
	ID           string `db:"id" json:"id"`
	VersionID    string `db:"version_id" json:"version_id"`
	AssignmentID string `db:"assignment_id" json:"assignment_id"`
	GroupID      string `db:"group_id" json:"group_id"`
	TeacherID    string `db:"teacher_id" json:"teacher_id"`
	SubjectID    string `db:"subject_id" json:"subject_id"`
	Day          Day    `db:"day" json:"day"`
	BlockID      int    `db:"block_id" json:"block_id"`
}

// ExportFormat enumerates renderings of a published version.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
)

// ExportFormats lists every format with a renderer.
var ExportFormats = []ExportFormat{ExportFormatCSV, ExportFormatPDF, ExportFormatXLSX}

// Valid reports whether the format has a renderer.
func (f ExportFormat) Valid() bool {
	for _, known := range ExportFormats {
		if f == known {
			return true
		}
	}
	return false
}
