package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/campusbooks/registrar-api/internal/models"
)

func TestMissingPrerequisites(t *testing.T) {
	tests := []struct {
		name      string
		required  []string
		completed []string
		want      []string
	}{
		{"no requirements", nil, []string{"a"}, nil},
		{"all met", []string{"a", "b"}, []string{"b", "a", "c"}, nil},
		{"some missing", []string{"a", "b", "c"}, []string{"b"}, []string{"a", "c"}},
		{"nothing completed", []string{"a"}, nil, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MissingPrerequisites(tt.required, tt.completed))
		})
	}
}

func TestCreditLoad(t *testing.T) {
	enrollments := []models.Enrollment{
		{Credits: 3, Status: models.EnrollmentStatusPendingApproval},
		{Credits: 4, Status: models.EnrollmentStatusEnrolled},
		{Credits: 3, Status: models.EnrollmentStatusWithdrawn},
		{Credits: 3, Status: models.EnrollmentStatusRejected},
		{Credits: 2, Status: models.EnrollmentStatusCompleted},
	}
	// Only pending and enrolled count.
	assert.Equal(t, 7, CreditLoad(enrollments))
	assert.Equal(t, 0, CreditLoad(nil))
}

func TestFindScheduleConflict(t *testing.T) {
	target := []models.ScheduleEvent{
		{DayOfWeek: 1, StartMinute: 540, EndMinute: 600}, // Mon 09:00-10:00
	}

	tests := []struct {
		name     string
		existing models.ScheduleEvent
		conflict bool
	}{
		{"identical block", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 540, EndMinute: 600}, true},
		{"overlapping start", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 570, EndMinute: 630}, true},
		{"overlapping end", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 510, EndMinute: 570}, true},
		{"contained", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 550, EndMinute: 590}, true},
		{"containing", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 480, EndMinute: 660}, true},
		{"back to back after", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 600, EndMinute: 660}, false},
		{"back to back before", models.ScheduleEvent{DayOfWeek: 1, StartMinute: 480, EndMinute: 540}, false},
		{"different day", models.ScheduleEvent{DayOfWeek: 2, StartMinute: 540, EndMinute: 600}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindScheduleConflict(target, []models.ScheduleEvent{tt.existing})
			if tt.conflict {
				assert.NotNil(t, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestFindScheduleConflictEmpty(t *testing.T) {
	assert.Nil(t, FindScheduleConflict(nil, nil))
	assert.Nil(t, FindScheduleConflict([]models.ScheduleEvent{{DayOfWeek: 1, StartMinute: 0, EndMinute: 60}}, nil))
}
