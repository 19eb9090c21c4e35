package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment application.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
	EnrollmentStatusEnrolled EnrollmentStatus = "ENROLLED"
)

// EnrollmentType distinguishes how a student enters the school.
type EnrollmentType string

// Possible enrollment types.
const (
	EnrollmentTypeNew        EnrollmentType = "NEW"
	EnrollmentTypeReturning  EnrollmentType = "RETURNING"
	EnrollmentTypeTransferee EnrollmentType = "TRANSFEREE"
)

// enrollmentTransitions is the authoritative transition table. Rejected
// applications re-enter the pending state on resubmission; enrolled is
// terminal for the school year.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:  {EnrollmentStatusApproved, EnrollmentStatusRejected},
	EnrollmentStatusApproved: {EnrollmentStatusEnrolled},
	EnrollmentStatusRejected: {EnrollmentStatusPending},
	EnrollmentStatusEnrolled: {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Enrollment captures one application by one student for one school year.
// Records are never deleted; review decisions and registration only move
// the status.
type Enrollment struct {
	ID                 string           `db:"id" json:"id"`
	StudentID          string           `db:"student_id" json:"student_id"`
	SchoolYearID       string           `db:"school_year_id" json:"school_year_id"`
	Status             EnrollmentStatus `db:"status" json:"status"`
	IntendedGradeLevel int              `db:"intended_grade_level" json:"intended_grade_level"`
	EnrollmentType     EnrollmentType   `db:"enrollment_type" json:"enrollment_type"`
	AssignedSectionID  *string          `db:"assigned_section_id" json:"assigned_section_id,omitempty"`
	AssignedStrandID   *string          `db:"assigned_strand_id" json:"assigned_strand_id,omitempty"`
	DocumentsAttached  bool             `db:"documents_attached" json:"documents_attached"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
	UpdatedBy          *string          `db:"updated_by" json:"updated_by,omitempty"`
}

// StrandPreference is one ranked strand choice inside an application.
type StrandPreference struct {
	EnrollmentID    string `db:"enrollment_id" json:"enrollment_id"`
	StrandID        string `db:"strand_id" json:"strand_id"`
	PreferenceOrder int    `db:"preference_order" json:"preference_order"`
}

// EnrollmentDetail enriches Enrollment with joined display fields used by
// review screens and by the registration engine's completeness checks.
type EnrollmentDetail struct {
	Enrollment
	StudentName     string  `db:"student_name" json:"student_name"`
	StudentLRN      string  `db:"student_lrn" json:"student_lrn"`
	SchoolYearStart string  `db:"school_year_start" json:"school_year_start"`
	SchoolYearEnd   string  `db:"school_year_end" json:"school_year_end"`
	Semester        string  `db:"semester" json:"semester"`
	SectionName     *string `db:"section_name" json:"section_name,omitempty"`
	StrandCode      *string `db:"strand_code" json:"strand_code,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	SchoolYearID string
	Status       EnrollmentStatus
	Type         EnrollmentType
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
