package service

import (
	"github.com/campusbooks/registrar-api/internal/models"
)

// Eligibility checks are pure functions over rows already read inside the
// settlement transaction; they never touch storage themselves.

// MissingPrerequisites returns the required course IDs that do not appear in
// the student's completed set, preserving the order of required.
func MissingPrerequisites(required, completed []string) []string {
	if len(required) == 0 {
		return nil
	}
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}
	var missing []string
	for _, id := range required {
		if _, ok := done[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// CreditLoad sums the credit snapshots of enrollments whose status still
// counts toward the term ceiling.
func CreditLoad(enrollments []models.Enrollment) int {
	total := 0
	for _, e := range enrollments {
		if e.Status.CountsTowardCreditLoad() {
			total += e.Credits
		}
	}
	return total
}

// FindScheduleConflict compares every event of the target section against
// every event of the student's enrolled sections and returns the first
// colliding pair, or nil. Overlap is half-open: blocks that merely touch at a
// boundary do not conflict.
func FindScheduleConflict(target, existing []models.ScheduleEvent) *models.ScheduleEvent {
	for _, t := range target {
		for _, e := range existing {
			if t.Overlaps(e) {
				conflict := e
				return &conflict
			}
		}
	}
	return nil
}
