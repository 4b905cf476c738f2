package models

import "time"

// Term models an academic term within the institution calendar.
type Term struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	AcademicYear      string    `db:"academic_year" json:"academic_year"`
	StartDate         time.Time `db:"start_date" json:"start_date"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
	RegistrationStart time.Time `db:"registration_start" json:"registration_start"`
	RegistrationEnd   time.Time `db:"registration_end" json:"registration_end"`
	AddDropDeadline   time.Time `db:"add_drop_deadline" json:"add_drop_deadline"`
	MaxCredits        int       `db:"max_credits" json:"max_credits"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// RegistrationOpenAt reports whether the registration window and the
// add/drop deadline both cover the given instant.
func (t *Term) RegistrationOpenAt(now time.Time) bool {
	if now.Before(t.RegistrationStart) {
		return false
	}
	if now.After(t.RegistrationEnd) {
		return false
	}
	return !now.After(t.AddDropDeadline)
}
