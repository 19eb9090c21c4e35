package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSchoolYearRepositoryFindActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolYearRepository(db)

	rows := sqlmock.NewRows([]string{"id", "year_start", "year_end", "semester", "is_active", "enrollment_start", "enrollment_end", "created_at", "updated_at"}).
		AddRow("sy-1", "2025", "2026", "1st Semester", true, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM school_years WHERE is_active = TRUE LIMIT 1")).
		WillReturnRows(rows)

	year, err := repo.FindActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sy-1", year.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolYearRepositoryActivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE school_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE school_years SET is_active = TRUE, updated_at = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), "sy-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolYearRepositoryActivateMissingRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolYearRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE school_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE AND id <> $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE school_years SET is_active = TRUE, updated_at = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchoolYearRepositoryDeactivateAll(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSchoolYearRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE school_years SET is_active = FALSE, updated_at = $1 WHERE is_active = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.DeactivateAll(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
