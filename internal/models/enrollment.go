package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. PENDING_APPROVAL, ENROLLED and WITHDRAWN are
// the "active" statuses: they count toward the one-active-row-per
// (student, course, term) constraint.
const (
	EnrollmentStatusPendingApproval EnrollmentStatus = "PENDING_APPROVAL"
	EnrollmentStatusEnrolled        EnrollmentStatus = "ENROLLED"
	EnrollmentStatusRejected        EnrollmentStatus = "REJECTED"
	EnrollmentStatusWithdrawn       EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusDropped         EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted       EnrollmentStatus = "COMPLETED"
)

// ActiveEnrollmentStatuses lists the statuses that occupy the unique
// (student, course, term) slot.
var ActiveEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPendingApproval,
	EnrollmentStatusEnrolled,
	EnrollmentStatusWithdrawn,
}

// CountsTowardCreditLoad reports whether the status occupies seat time for the
// per-term credit ceiling. Withdrawn courses keep their unique slot but no
// longer consume credits.
func (s EnrollmentStatus) CountsTowardCreditLoad() bool {
	return s == EnrollmentStatusPendingApproval || s == EnrollmentStatusEnrolled
}

// Enrollment captures a student's registration to a class section. Credits are
// snapshotted at registration time so later catalog edits cannot skew refunds.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassSectionID string           `db:"class_section_id" json:"class_section_id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	TermID         string           `db:"term_id" json:"term_id"`
	Credits        int              `db:"credits" json:"credits"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	DecidedBy      *string          `db:"decided_by" json:"decided_by,omitempty"`
	DecisionReason *string          `db:"decision_reason" json:"decision_reason,omitempty"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student, course and section info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentNo   string `db:"student_no" json:"student_no"`
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	SectionCode string `db:"section_code" json:"section_code"`
	TermName    string `db:"term_name" json:"term_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID      string
	ClassSectionID string
	TermID         string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
