package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	cases := map[string]Day{
		"MON":       DayMonday,
		"monday":    DayMonday,
		" Tue ":     DayTuesday,
		"wednesday": DayWednesday,
		"THU":       DayThursday,
		"Friday":    DayFriday,
	}
	for raw, want := range cases {
		got, err := ParseDay(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseDay("SAT")
	assert.Error(t, err)
	_, err = ParseDay("")
	assert.Error(t, err)
}

func TestDayIndex(t *testing.T) {
	assert.Equal(t, 0, DayMonday.Index())
	assert.Equal(t, 4, DayFriday.Index())
	assert.Equal(t, -1, Day("SUN").Index())
	assert.False(t, Day("SUN").Valid())
	assert.Len(t, WeekDays(), 5)
}

func TestPrincipalPermissions(t *testing.T) {
	coordinator := Principal{UserID: "u1", Role: RoleCoordinator}
	teacher := Principal{UserID: "u2", Role: RoleTeacher, TeacherID: "T1"}
	student := Principal{UserID: "u3", Role: RoleStudent}

	assert.True(t, coordinator.ManagesTimetable())
	assert.True(t, coordinator.CanEditAvailability("T9"))
	assert.False(t, teacher.ManagesTimetable())
	assert.True(t, teacher.CanEditAvailability("T1"))
	assert.False(t, teacher.CanEditAvailability("T2"))
	assert.False(t, student.CanEditAvailability(""))
}

func TestConflictErrorMessage(t *testing.T) {
	err := &ConflictError{Kind: ConflictTeacherSlotTaken, Day: DayMonday, BlockID: 1, TeacherID: "T1"}
	assert.Equal(t, "teacher T1 already teaches at MON/1", err.Error())

	inUse := &EntityInUseError{Kind: EntityGroup, ID: "G1", References: 2}
	assert.Contains(t, inUse.Error(), "group G1")
}

func TestExportFormatValid(t *testing.T) {
	for _, f := range ExportFormats {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, ExportFormat("docx").Valid())
	assert.False(t, ExportFormat("").Valid())
}
