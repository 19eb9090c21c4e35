package models

import "time"

// Student carries the personal information the registration workflow needs.
type Student struct {
	ID        string    `db:"id" json:"id"`
	LRN       string    `db:"lrn" json:"lrn"`
	FullName  string    `db:"full_name" json:"full_name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
