package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

func TestClassEnrollmentRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO class_enrollments").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ce := &models.ClassEnrollment{
		ClassID:      "class-1",
		StudentID:    "stu-1",
		EnrollmentID: "enr-1",
		SectionID:    "sec-1",
	}
	require.NoError(t, repo.Upsert(context.Background(), nil, ce))
	require.NotEmpty(t, ce.ID)
	require.Equal(t, models.ClassEnrollmentStatusEnrolled, ce.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassEnrollmentRepositoryDeleteByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM class_enrollments WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteByEnrollment(context.Background(), nil, "enr-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassEnrollmentRepositoryListSubjectsByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewClassEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"class_id", "subject_id", "subject_code", "subject_name", "schedule", "faculty_name", "credited"}).
		AddRow("class-1", "subj-math", "MATH11", "General Mathematics", "MWF 8:00-9:00", "Santos", false).
		AddRow("class-2", "subj-eng", "ENG11", "Oral Communication", "TTh 9:00-10:30", "Reyes", true)
	mock.ExpectQuery("SELECT ce.class_id, co.subject_id").
		WithArgs("enr-1").
		WillReturnRows(rows)

	subjects, err := repo.ListSubjectsByEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	require.True(t, subjects[1].Credited)
	require.NoError(t, mock.ExpectationsWereMet())
}
