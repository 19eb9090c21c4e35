package models

// ClassOffering is one scheduled class attached to a section for a school
// year. The roster is owned by scheduling; the registration engine consumes
// it read-only.
type ClassOffering struct {
	ID           string `db:"id" json:"id"`
	SubjectID    string `db:"subject_id" json:"subject_id"`
	SectionID    string `db:"section_id" json:"section_id"`
	SchoolYearID string `db:"school_year_id" json:"school_year_id"`
	SubjectCode  string `db:"subject_code" json:"subject_code"`
	SubjectName  string `db:"subject_name" json:"subject_name"`
	Schedule     string `db:"schedule" json:"schedule"`
	FacultyName  string `db:"faculty_name" json:"faculty_name"`
}

// Section groups students under a common timetable of class offerings.
type Section struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	GradeLevel int    `db:"grade_level" json:"grade_level"`
	StrandID   string `db:"strand_id" json:"strand_id"`
}

// Strand is an academic track such as STEM or ABM.
type Strand struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}
