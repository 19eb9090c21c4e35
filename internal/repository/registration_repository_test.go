package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shs-registrar-api/internal/models"
)

func TestRegistrationRepositoryNextSequence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO cor_sequences (school_year_id, last_seq) VALUES ($1, 1)")).
		WithArgs("sy-1").
		WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(4))

	seq, err := repo.NextSequence(context.Background(), nil, "sy-1")
	require.NoError(t, err)
	require.Equal(t, 4, seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryNumberExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates_of_registration WHERE cor_number = $1 LIMIT 1")).
		WithArgs("COR-2025-00001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM certificates_of_registration WHERE cor_number = $1 LIMIT 1")).
		WithArgs("COR-2025-00002").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	taken, err := repo.NumberExists(context.Background(), nil, "COR-2025-00001")
	require.NoError(t, err)
	require.True(t, taken)

	taken, err = repo.NumberExists(context.Background(), nil, "COR-2025-00002")
	require.NoError(t, err)
	require.False(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryFindByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{"id", "cor_number", "enrollment_id", "student_id", "school_year_id", "section_id", "strand_id",
		"semester", "year_level", "registration_date", "status", "generated_by", "generated_at"}).
		AddRow("cor-1", "COR-2025-00001", "enr-1", "stu-1", "sy-1", "sec-1", "stem",
			1, 11, time.Now(), models.CORStatusActive, "reg-1", time.Now())
	mock.ExpectQuery("SELECT .+ FROM certificates_of_registration WHERE enrollment_id = ").
		WithArgs("enr-1").
		WillReturnRows(rows)

	cor, err := repo.FindByEnrollment(context.Background(), nil, "enr-1")
	require.NoError(t, err)
	require.Equal(t, "COR-2025-00001", cor.CORNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryInsertDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec("INSERT INTO certificates_of_registration").
		WillReturnResult(sqlmock.NewResult(1, 1))

	cor := &models.CertificateOfRegistration{
		CORNumber:    "COR-2025-00001",
		EnrollmentID: "enr-1",
		StudentID:    "stu-1",
		SchoolYearID: "sy-1",
		SectionID:    "sec-1",
		StrandID:     "stem",
		Semester:     1,
		YearLevel:    11,
		GeneratedBy:  "reg-1",
	}
	require.NoError(t, repo.Insert(context.Background(), nil, cor))
	require.NotEmpty(t, cor.ID)
	require.False(t, cor.RegistrationDate.IsZero())
	require.Equal(t, models.CORStatusActive, cor.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryTouchAudit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates_of_registration SET generated_by = $2, generated_at = $3 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.TouchAudit(context.Background(), nil, "cor-1", "reg-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}
