package models

// ScheduleEvent is one weekly meeting block of a class section. Times are
// minutes from midnight; [StartMinute, EndMinute) is half-open.
type ScheduleEvent struct {
	ID             string `db:"id" json:"id"`
	ClassSectionID string `db:"class_section_id" json:"class_section_id"`
	DayOfWeek      int    `db:"day_of_week" json:"day_of_week"`
	StartMinute    int    `db:"start_minute" json:"start_minute"`
	EndMinute      int    `db:"end_minute" json:"end_minute"`
	Room           string `db:"room" json:"room"`
}

// Overlaps reports whether two events collide. Events on different days never
// collide; on the same day the half-open intervals conflict iff
// startA < endB && endA > startB, so back-to-back blocks are allowed.
func (e ScheduleEvent) Overlaps(other ScheduleEvent) bool {
	if e.DayOfWeek != other.DayOfWeek {
		return false
	}
	return e.StartMinute < other.EndMinute && e.EndMinute > other.StartMinute
}
