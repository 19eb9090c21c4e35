package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shs-registrar-api/internal/models"
	appErrors "github.com/noah-isme/shs-registrar-api/pkg/errors"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type corRepoMock struct {
	existing    *models.CertificateOfRegistration
	afterInsert *models.CertificateOfRegistration
	byID        map[string]*models.CertificateOfRegistration
	nextSeq     int
	takenBySeq  map[string]bool
	insertErr   error
	insertCalls int
	inserted    *models.CertificateOfRegistration
	touchActors []string
}

func (m *corRepoMock) FindByID(ctx context.Context, id string) (*models.CertificateOfRegistration, error) {
	if cor, ok := m.byID[id]; ok {
		return cor, nil
	}
	return nil, sql.ErrNoRows
}

func (m *corRepoMock) FindByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.CertificateOfRegistration, error) {
	if m.existing != nil && m.existing.EnrollmentID == enrollmentID {
		return m.existing, nil
	}
	// afterInsert simulates a concurrent writer whose certificate only
	// becomes visible once this writer's insert has been attempted.
	if m.insertCalls > 0 && m.afterInsert != nil && m.afterInsert.EnrollmentID == enrollmentID {
		return m.afterInsert, nil
	}
	return nil, sql.ErrNoRows
}

func (m *corRepoMock) NextSequence(ctx context.Context, exec sqlx.ExtContext, schoolYearID string) (int, error) {
	m.nextSeq++
	return m.nextSeq, nil
}

func (m *corRepoMock) NumberExists(ctx context.Context, exec sqlx.ExtContext, number string) (bool, error) {
	return m.takenBySeq[number], nil
}

func (m *corRepoMock) Insert(ctx context.Context, exec sqlx.ExtContext, cor *models.CertificateOfRegistration) error {
	m.insertCalls++
	if m.insertErr != nil {
		return m.insertErr
	}
	cor.ID = "cor-1"
	m.inserted = cor
	return nil
}

func (m *corRepoMock) TouchAudit(ctx context.Context, exec sqlx.ExtContext, id, generatedBy string) error {
	m.touchActors = append(m.touchActors, generatedBy)
	return nil
}

type classEnrollmentRepoMock struct {
	upserts  []*models.ClassEnrollment
	deleted  []string
	subjects []models.CORSubject
}

func (m *classEnrollmentRepoMock) Upsert(ctx context.Context, exec sqlx.ExtContext, ce *models.ClassEnrollment) error {
	m.upserts = append(m.upserts, ce)
	return nil
}

func (m *classEnrollmentRepoMock) DeleteByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) error {
	m.deleted = append(m.deleted, enrollmentID)
	return nil
}

func (m *classEnrollmentRepoMock) ListSubjectsByEnrollment(ctx context.Context, enrollmentID string) ([]models.CORSubject, error) {
	return m.subjects, nil
}

type rosterMock struct {
	offerings []models.ClassOffering
}

func (m rosterMock) ListBySectionAndYear(ctx context.Context, sectionID, schoolYearID string) ([]models.ClassOffering, error) {
	return m.offerings, nil
}

type creditResolverMock struct {
	credited map[string]struct{}
	calls    int
}

func (m *creditResolverMock) ResolveCredited(ctx context.Context, studentID string) (map[string]struct{}, error) {
	m.calls++
	if m.credited == nil {
		return map[string]struct{}{}, nil
	}
	return m.credited, nil
}

type enrollmentWriterMock struct {
	detail        *models.EnrollmentDetail
	statusUpdates []models.EnrollmentStatus
}

func (m *enrollmentWriterMock) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if m.detail == nil {
		return nil, sql.ErrNoRows
	}
	return m.detail, nil
}

func (m *enrollmentWriterMock) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, updatedBy *string) error {
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func approvedDetail() *models.EnrollmentDetail {
	return &models.EnrollmentDetail{
		Enrollment: models.Enrollment{
			ID:                 "enr-1",
			StudentID:          "stu-1",
			SchoolYearID:       "sy-1",
			Status:             models.EnrollmentStatusApproved,
			IntendedGradeLevel: 11,
			EnrollmentType:     models.EnrollmentTypeNew,
			AssignedSectionID:  strPtr("sec-1"),
			AssignedStrandID:   strPtr("stem"),
		},
		StudentName:     "Juan Dela Cruz",
		StudentLRN:      "123456789012",
		SchoolYearStart: "2025",
		SchoolYearEnd:   "2026",
		Semester:        "2nd Semester",
	}
}

func sampleOfferings() []models.ClassOffering {
	return []models.ClassOffering{
		{ID: "class-1", SubjectID: "subj-math", SectionID: "sec-1", SchoolYearID: "sy-1"},
		{ID: "class-2", SubjectID: "subj-eng", SectionID: "sec-1", SchoolYearID: "sy-1"},
	}
}

type registrationFixture struct {
	cors        *corRepoMock
	classes     *classEnrollmentRepoMock
	roster      rosterMock
	credits     *creditResolverMock
	enrollments *enrollmentWriterMock
	mock        sqlmock.Sqlmock
	svc         *RegistrationService
}

func newRegistrationFixture(t *testing.T, detail *models.EnrollmentDetail, offerings []models.ClassOffering) *registrationFixture {
	tx, mock := newTxProviderMock(t)
	f := &registrationFixture{
		cors:        &corRepoMock{takenBySeq: map[string]bool{}},
		classes:     &classEnrollmentRepoMock{},
		roster:      rosterMock{offerings: offerings},
		credits:     &creditResolverMock{},
		enrollments: &enrollmentWriterMock{detail: detail},
		mock:        mock,
	}
	f.svc = NewRegistrationService(f.cors, f.classes, f.roster, f.credits, f.enrollments,
		guardStub{year: activeYear()}, &auditMock{}, tx, nil, nil, RegistrationConfig{NumberMaxRetries: 3})
	return f
}

func TestRegistrationServiceGenerateCOR(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", &models.JWTClaims{UserID: "reg-1", Role: models.RoleRegistrar})
	require.NoError(t, err)
	require.NotNil(t, cor)

	assert.Equal(t, "COR-2025-00001", cor.CORNumber)
	assert.Equal(t, 2, cor.Semester)
	assert.Equal(t, 11, cor.YearLevel)
	assert.Equal(t, models.CORStatusActive, cor.Status)
	assert.Equal(t, "reg-1", cor.GeneratedBy)

	require.Len(t, f.classes.upserts, 2)
	for _, ce := range f.classes.upserts {
		assert.Equal(t, models.ClassEnrollmentStatusEnrolled, ce.Status)
		assert.Equal(t, "sec-1", ce.SectionID)
	}

	require.Len(t, f.enrollments.statusUpdates, 1)
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.enrollments.statusUpdates[0])
	assert.Equal(t, 0, f.credits.calls, "non-transferee should not resolve credits")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationServiceGenerateCORTransfereeCredits(t *testing.T) {
	detail := approvedDetail()
	detail.EnrollmentType = models.EnrollmentTypeTransferee
	f := newRegistrationFixture(t, detail, sampleOfferings())
	f.credits.credited = map[string]struct{}{"subj-math": {}}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	_, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)

	require.Len(t, f.classes.upserts, 2)
	statuses := map[string]models.ClassEnrollmentStatus{}
	for _, ce := range f.classes.upserts {
		statuses[ce.ClassID] = ce.Status
	}
	assert.Equal(t, models.ClassEnrollmentStatusCredited, statuses["class-1"])
	assert.Equal(t, models.ClassEnrollmentStatusEnrolled, statuses["class-2"])
	assert.Equal(t, 1, f.credits.calls)
}

func TestRegistrationServiceGenerateCORIdempotent(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	existing := &models.CertificateOfRegistration{ID: "cor-9", CORNumber: "COR-2025-00009", EnrollmentID: "enr-1"}
	f.cors.existing = existing

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "cor-9", cor.ID)
	assert.Nil(t, f.cors.inserted)
	assert.Empty(t, f.enrollments.statusUpdates)
}

func TestRegistrationServiceGenerateCORRequiresApproved(t *testing.T) {
	detail := approvedDetail()
	detail.Status = models.EnrollmentStatusPending
	f := newRegistrationFixture(t, detail, sampleOfferings())

	_, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestRegistrationServiceGenerateCORIncomplete(t *testing.T) {
	detail := approvedDetail()
	detail.AssignedSectionID = nil
	f := newRegistrationFixture(t, detail, sampleOfferings())

	_, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrIncompleteEnrollment))
	assert.Contains(t, appErrors.FromError(err).Message, "assigned section")
}

func TestRegistrationServiceGenerateCORSkipsTakenNumbers(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	f.cors.takenBySeq["COR-2025-00001"] = true

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "COR-2025-00002", cor.CORNumber)
}

func TestRegistrationServiceGenerateCORSequenceExhausted(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	f.cors.takenBySeq["COR-2025-00001"] = true
	f.cors.takenBySeq["COR-2025-00002"] = true
	f.cors.takenBySeq["COR-2025-00003"] = true

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSequenceExhausted))
	assert.Nil(t, f.cors.inserted)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationServiceGenerateCORConcurrentWinner(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	f.cors.insertErr = &pq.Error{Code: "23505", Constraint: corEnrollmentConstraint}
	f.cors.afterInsert = &models.CertificateOfRegistration{
		ID:           "cor-7",
		CORNumber:    "COR-2025-00042",
		EnrollmentID: "enr-1",
	}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "cor-7", cor.ID)
	assert.Equal(t, "COR-2025-00042", cor.CORNumber, "loser returns the concurrent winner's certificate")
	assert.Nil(t, f.cors.inserted)
	assert.Empty(t, f.enrollments.statusUpdates, "losing writer must not flip the enrollment")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationServiceGenerateCORNumberCollision(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	f.cors.insertErr = &pq.Error{Code: "23505", Constraint: corNumberConstraint}

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSequenceExhausted))
	assert.Nil(t, f.cors.inserted)
	assert.Empty(t, f.enrollments.statusUpdates)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationServiceGenerateCOREmptyRoster(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), nil)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Empty(t, f.classes.upserts)
	assert.Equal(t, "COR-2025-00001", cor.CORNumber)
}

func TestRegistrationServiceGenerateCORSystemActor(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	cor, err := f.svc.GenerateCOR(context.Background(), "enr-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "system", cor.GeneratedBy)
}

func TestRegistrationServiceRegenerateCOR(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	cor := &models.CertificateOfRegistration{
		ID:           "cor-1",
		CORNumber:    "COR-2025-00001",
		EnrollmentID: "enr-1",
		StudentID:    "stu-1",
		SchoolYearID: "sy-1",
	}
	f.cors.byID = map[string]*models.CertificateOfRegistration{"cor-1": cor}

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	refreshed, err := f.svc.RegenerateCOR(context.Background(), "cor-1", &models.JWTClaims{UserID: "reg-2"})
	require.NoError(t, err)
	assert.Equal(t, "COR-2025-00001", refreshed.CORNumber, "regeneration keeps the number")

	require.Len(t, f.classes.deleted, 1)
	assert.Equal(t, "enr-1", f.classes.deleted[0])
	require.Len(t, f.classes.upserts, 2)
	require.Len(t, f.cors.touchActors, 1)
	assert.Equal(t, "reg-2", f.cors.touchActors[0])
	assert.Nil(t, f.cors.inserted, "regeneration must not allocate a new certificate")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRegistrationServiceRegenerateCORNotFound(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())

	_, err := f.svc.RegenerateCOR(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRegistrationServiceGetCORSubjects(t *testing.T) {
	f := newRegistrationFixture(t, approvedDetail(), sampleOfferings())
	f.cors.byID = map[string]*models.CertificateOfRegistration{
		"cor-1": {ID: "cor-1", EnrollmentID: "enr-1"},
	}
	f.classes.subjects = []models.CORSubject{
		{ClassID: "class-1", SubjectID: "subj-math", SubjectCode: "MATH11", Credited: true},
		{ClassID: "class-2", SubjectID: "subj-eng", SubjectCode: "ENG11"},
	}

	subjects, err := f.svc.GetCORSubjects(context.Background(), "cor-1")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.True(t, subjects[0].Credited)
}
