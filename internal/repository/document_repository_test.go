package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

func newDocumentRepoMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewDocumentRepository(sqlxDB), mock, func() { sqlxDB.Close() }
}

var documentTestColumns = []string{
	"id", "doctype", "typeid", "courseid", "cmid", "userid", "answerid", "discussion", "assignment",
	"attemptnumber", "status", "externalid", "report_edit", "report_read", "report_short",
	"plagiarism", "legal_citation", "self_citation", "suspicious", "stud_check", "error", "pending_removal",
	"added_at", "upload_start", "upload_end", "check_start", "check_end",
}

func documentRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows(documentTestColumns).AddRow(
		id, "assign", "digest-1", int64(11), int64(42), int64(7), int64(100), nil, nil,
		0, int(models.StatusWaitUpload), nil, nil, nil, nil,
		nil, nil, nil, false, 0, nil, false,
		time.Now().UTC(), nil, nil, nil, nil,
	)
}

func TestDocumentInsert(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`INSERT INTO queue_documents`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	doc := &models.QueueDocument{
		DocType:  models.DocTypeAssign,
		TypeID:   "digest-1",
		CourseID: 11,
		CmID:     42,
		UserID:   7,
		AnswerID: 100,
		Status:   models.StatusWaitUpload,
	}
	require.NoError(t, repo.Insert(context.Background(), doc))
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.AddedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdentityReturnsNilWhenAbsent(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`WHERE doctype = \$1 AND typeid = \$2 AND userid = \$3 AND answerid = \$4`).
		WithArgs("assign", "digest-1", int64(7), int64(100)).
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.FindByIdentity(context.Background(), models.Identity{
		DocType:  models.DocTypeAssign,
		TypeID:   "digest-1",
		UserID:   7,
		AnswerID: 100,
	})
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIdentityScopesByDiscussion(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	discussion := int64(5)
	mock.ExpectQuery(`AND discussion = \$5`).
		WithArgs("forum", "digest-1", int64(7), int64(100), discussion).
		WillReturnRows(documentRow("doc-1"))

	doc, err := repo.FindByIdentity(context.Background(), models.Identity{
		DocType:    models.DocTypeForum,
		TypeID:     "digest-1",
		UserID:     7,
		AnswerID:   100,
		Discussion: &discussion,
	})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "doc-1", doc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTypeIDReturnsNilWhenAbsent(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`WHERE doctype = \$1 AND typeid = \$2`).
		WithArgs("assign", "missing").
		WillReturnError(sql.ErrNoRows)

	doc, err := repo.FindByTypeID(context.Background(), models.DocTypeAssign, "missing")
	require.NoError(t, err)
	assert.Nil(t, doc)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsBuildsPartialSet(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE queue_documents SET status = \$1, error = NULL WHERE id = \$2`).
		WithArgs(int(models.StatusChecking), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	checking := models.StatusChecking
	err := repo.UpdateFields(context.Background(), "doc-1", UpdateDocumentParams{Status: &checking, ClearError: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsMissingRow(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE queue_documents SET typeid = \$1 WHERE id = \$2`).
		WithArgs("digest-2", "doc-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	typeID := "digest-2"
	err := repo.UpdateFields(context.Background(), "doc-gone", UpdateDocumentParams{TypeID: &typeID})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsNoopWithoutChanges(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	require.NoError(t, repo.UpdateFields(context.Background(), "doc-1", UpdateDocumentParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEligibleForUploadJoinsPolicies(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`JOIN module_policies p ON`).
		WithArgs(int(models.StatusWaitUpload), "automatic", int(models.StatusErrorUploading), 10).
		WillReturnRows(documentRow("doc-1"))

	docs, err := repo.ListEligibleForUpload(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInFlightStatuses(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`WHERE status IN \(\$1, \$2, \$3, \$4, \$5\)`).
		WithArgs(
			int(models.StatusUploaded), int(models.StatusChecking),
			int(models.StatusErrorChecking), int(models.StatusErrorGetStatus), int(models.StatusErrorIndex), 10,
		).
		WillReturnRows(sqlmock.NewRows(documentTestColumns))

	docs, err := repo.ListInFlight(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSupersededDefaultsToModuleScope(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`AND answerid <> \$4 AND cmid = \$5`).
		WithArgs("assign", int64(7), int(models.StatusInIndex), int64(100), int64(42)).
		WillReturnRows(documentRow("doc-old"))

	docs, err := repo.ListSuperseded(context.Background(), &models.QueueDocument{
		DocType:  models.DocTypeAssign,
		CmID:     42,
		UserID:   7,
		AnswerID: 100,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-old", docs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountInStatus(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM queue_documents`).
		WithArgs(int64(42), int64(7), int(models.StatusChecking)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountInStatus(context.Background(), 42, 7, models.StatusChecking)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementSelfChecks(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`SET stud_check = stud_check \+ 1`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementSelfChecks(context.Background(), "doc-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsPendingRemoval(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`UPDATE queue_documents SET status = \$1, error = \$2, pending_removal = \$3 WHERE id = \$4`).
		WithArgs(int(models.StatusErrorIndex), "retraction not confirmed", true, "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	errorIndex := models.StatusErrorIndex
	msg := "retraction not confirmed"
	pending := true
	err := repo.UpdateFields(context.Background(), "doc-1", UpdateDocumentParams{Status: &errorIndex, ErrorText: &msg, PendingRemoval: &pending})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimTakesFreeLease(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	until := time.Now().UTC().Add(2 * time.Minute)
	mock.ExpectExec(`SET claimed_until = \$2\s+WHERE id = \$1 AND \(claimed_until IS NULL OR claimed_until < NOW\(\)\)`).
		WithArgs("doc-1", until).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Claim(context.Background(), "doc-1", until)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimHeldLease(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	until := time.Now().UTC().Add(2 * time.Minute)
	mock.ExpectExec(`SET claimed_until = \$2`).
		WithArgs("doc-1", until).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.Claim(context.Background(), "doc-1", until)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRow(t *testing.T) {
	repo, mock, cleanup := newDocumentRepoMock(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM queue_documents WHERE id = \$1`).
		WithArgs("doc-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "doc-gone")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
