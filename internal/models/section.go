package models

import "time"

// ClassSection is a scheduled offering of a course within a term. The
// enrollment counters are mutated only under a row lock; the database
// additionally enforces 0 <= current_enrollment <= max_capacity.
type ClassSection struct {
	ID                string    `db:"id" json:"id"`
	CourseID          string    `db:"course_id" json:"course_id"`
	TermID            string    `db:"term_id" json:"term_id"`
	Code              string    `db:"code" json:"code"`
	MaxCapacity       int       `db:"max_capacity" json:"max_capacity"`
	CurrentEnrollment int       `db:"current_enrollment" json:"current_enrollment"`
	Open              bool      `db:"open" json:"open"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// HasSeat reports whether the section can admit one more student.
func (s *ClassSection) HasSeat() bool {
	return s.Open && s.CurrentEnrollment < s.MaxCapacity
}
