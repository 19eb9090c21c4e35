package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CORStatus represents the lifecycle of a certificate of registration.
type CORStatus string

// Possible COR statuses.
const (
	CORStatusActive     CORStatus = "ACTIVE"
	CORStatusSuperseded CORStatus = "SUPERSEDED"
)

// CertificateOfRegistration is the registration artifact binding one
// enrollment to the class offerings of its assigned section. At most one
// COR exists per enrollment; generation is idempotent.
type CertificateOfRegistration struct {
	ID               string    `db:"id" json:"id"`
	CORNumber        string    `db:"cor_number" json:"cor_number"`
	EnrollmentID     string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	SchoolYearID     string    `db:"school_year_id" json:"school_year_id"`
	SectionID        string    `db:"section_id" json:"section_id"`
	StrandID         string    `db:"strand_id" json:"strand_id"`
	Semester         int       `db:"semester" json:"semester"`
	YearLevel        int       `db:"year_level" json:"year_level"`
	RegistrationDate time.Time `db:"registration_date" json:"registration_date"`
	Status           CORStatus `db:"status" json:"status"`
	GeneratedBy      string    `db:"generated_by" json:"generated_by"`
	GeneratedAt      time.Time `db:"generated_at" json:"generated_at"`
}

// ClassEnrollmentStatus marks how a roster subject applies to the student.
type ClassEnrollmentStatus string

// Possible class enrollment statuses.
const (
	ClassEnrollmentStatusEnrolled ClassEnrollmentStatus = "ENROLLED"
	ClassEnrollmentStatusCredited ClassEnrollmentStatus = "CREDITED"
)

// ClassEnrollment links a student to one concrete class offering for an
// enrollment. Unique per (class, student, enrollment); regeneration upserts.
type ClassEnrollment struct {
	ID           string                `db:"id" json:"id"`
	ClassID      string                `db:"class_id" json:"class_id"`
	StudentID    string                `db:"student_id" json:"student_id"`
	EnrollmentID string                `db:"enrollment_id" json:"enrollment_id"`
	SectionID    string                `db:"section_id" json:"section_id"`
	Status       ClassEnrollmentStatus `db:"status" json:"status"`
	EnrolledAt   time.Time             `db:"enrolled_at" json:"enrolled_at"`
}

// CORSubject is the display-ready projection of one subject on a COR.
type CORSubject struct {
	ClassID     string `db:"class_id" json:"class_id"`
	SubjectID   string `db:"subject_id" json:"subject_id"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	Schedule    string `db:"schedule" json:"schedule"`
	FacultyName string `db:"faculty_name" json:"faculty_name"`
	Credited    bool   `db:"credited" json:"credited"`
}

// FormatCORNumber renders a COR number from the school year label and a
// sequence value, e.g. ("2025-2026", 3) -> "COR-2025-00003". The year
// component is the first four characters of the label.
func FormatCORNumber(yearLabel string, seq int) string {
	year := yearLabel
	if len(year) > 4 {
		year = year[:4]
	}
	return fmt.Sprintf("COR-%s-%05d", year, seq)
}

var semesterDigit = regexp.MustCompile(`^[0-9]+$`)

// NormalizeSemester maps a semester label onto its integer form. Numeric
// strings pass through; common textual forms of the first and second
// semester are recognised. Anything else falls back to 1, matching the
// historical ingest behaviour.
func NormalizeSemester(label string) int {
	trimmed := strings.TrimSpace(label)
	if semesterDigit.MatchString(trimmed) {
		if n, err := strconv.Atoi(trimmed); err == nil && n > 0 {
			return n
		}
	}

	switch strings.ToLower(trimmed) {
	case "1st semester", "first semester", "semester 1", "1st sem", "first":
		return 1
	case "2nd semester", "second semester", "semester 2", "2nd sem", "second":
		return 2
	}
	return 1
}
