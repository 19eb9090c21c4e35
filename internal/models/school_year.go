package models

import (
	"fmt"
	"time"
)

// SchoolYear models one academic year and semester configuration.
// At most one row is active at any time; activation is owned by the
// school year service and enforced by a partial unique index in storage.
type SchoolYear struct {
	ID              string     `db:"id" json:"id"`
	YearStart       string     `db:"year_start" json:"year_start"`
	YearEnd         string     `db:"year_end" json:"year_end"`
	Semester        string     `db:"semester" json:"semester"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	EnrollmentStart *time.Time `db:"enrollment_start" json:"enrollment_start,omitempty"`
	EnrollmentEnd   *time.Time `db:"enrollment_end" json:"enrollment_end,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Label renders the display form of the school year, e.g. "2025-2026".
func (y SchoolYear) Label() string {
	return fmt.Sprintf("%s-%s", y.YearStart, y.YearEnd)
}

// SchoolYearFilter defines filters supported by list endpoints.
type SchoolYearFilter struct {
	YearStart string
	IsActive  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
