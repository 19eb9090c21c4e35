package models

import "time"

// CreditStatus represents the review state of a carried-over subject credit.
type CreditStatus string

// Possible credit statuses.
const (
	CreditStatusPending  CreditStatus = "PENDING"
	CreditStatusCredited CreditStatus = "CREDITED"
)

// TransfereeCredit is a subject credit earned at a prior school. The
// registration engine reads only credited rows to exempt roster subjects.
type TransfereeCredit struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	SubjectID    string       `db:"subject_id" json:"subject_id"`
	CreditStatus CreditStatus `db:"credit_status" json:"credit_status"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}
