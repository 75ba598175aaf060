package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

const documentColumns = `id, doctype, typeid, courseid, cmid, userid, answerid, discussion, assignment,
       attemptnumber, status, externalid, report_edit, report_read, report_short,
       plagiarism, legal_citation, self_citation, suspicious, stud_check, error, pending_removal,
       added_at, upload_start, upload_end, check_start, check_end`

// DocumentRepository persists queue rows.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Insert stores a new queue row.
func (r *DocumentRepository) Insert(ctx context.Context, doc *models.QueueDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.AddedAt.IsZero() {
		doc.AddedAt = time.Now().UTC()
	}
	const query = `INSERT INTO queue_documents
	(id, doctype, typeid, courseid, cmid, userid, answerid, discussion, assignment,
	 attemptnumber, status, externalid, report_edit, report_read, report_short,
	 plagiarism, legal_citation, self_citation, suspicious, stud_check, error, pending_removal,
	 added_at, upload_start, upload_end, check_start, check_end)
	VALUES (:id, :doctype, :typeid, :courseid, :cmid, :userid, :answerid, :discussion, :assignment,
	 :attemptnumber, :status, :externalid, :report_edit, :report_read, :report_short,
	 :plagiarism, :legal_citation, :self_citation, :suspicious, :stud_check, :error, :pending_removal,
	 :added_at, :upload_start, :upload_end, :check_start, :check_end)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("insert queue document: %w", err)
	}
	return nil
}

// GetByID retrieves one queue row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.QueueDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM queue_documents WHERE id = $1`
	var doc models.QueueDocument
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByIdentity locates a row by its full identity tuple. Returns nil when
// absent rather than an error, since callers use this as an existence probe.
func (r *DocumentRepository) FindByIdentity(ctx context.Context, ident models.Identity) (*models.QueueDocument, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + documentColumns + ` FROM queue_documents
	WHERE doctype = $1 AND typeid = $2 AND userid = $3 AND answerid = $4`)
	args := []interface{}{ident.DocType, ident.TypeID, ident.UserID, ident.AnswerID}

	if ident.Discussion != nil {
		args = append(args, *ident.Discussion)
		builder.WriteString(fmt.Sprintf(" AND discussion = $%d", len(args)))
	}
	if ident.Assignment != nil {
		args = append(args, *ident.Assignment)
		builder.WriteString(fmt.Sprintf(" AND assignment = $%d", len(args)))
	}

	var doc models.QueueDocument
	if err := r.db.GetContext(ctx, &doc, builder.String(), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find queue document: %w", err)
	}
	return &doc, nil
}

// FindByTypeID locates a row by content identity alone, used by the manual
// check-now path where only typeid and doctype cross the request boundary.
func (r *DocumentRepository) FindByTypeID(ctx context.Context, doctype models.DocType, typeID string) (*models.QueueDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM queue_documents WHERE doctype = $1 AND typeid = $2`
	var doc models.QueueDocument
	if err := r.db.GetContext(ctx, &doc, query, doctype, typeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find queue document by typeid: %w", err)
	}
	return &doc, nil
}

// UpdateDocumentParams applies a partial update; nil fields are untouched.
type UpdateDocumentParams struct {
	TypeID         *string
	Status         *models.DocStatus
	ExternalID     *string
	ReportEdit     *string
	ReportRead     *string
	ReportShort    *string
	Plagiarism     *float64
	LegalCitation  *float64
	SelfCitation   *float64
	Suspicious     *bool
	ErrorText      *string
	ClearError     bool
	PendingRemoval *bool
	UploadStart    *time.Time
	UploadEnd      *time.Time
	CheckStart     *time.Time
	CheckEnd       *time.Time
}

// UpdateFields applies the provided partial update to one row. Each call is a
// narrow, independently committed write.
func (r *DocumentRepository) UpdateFields(ctx context.Context, id string, params UpdateDocumentParams) error {
	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)

	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.TypeID != nil {
		add("typeid", *params.TypeID)
	}
	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.ExternalID != nil {
		add("externalid", *params.ExternalID)
	}
	if params.ReportEdit != nil {
		add("report_edit", *params.ReportEdit)
	}
	if params.ReportRead != nil {
		add("report_read", *params.ReportRead)
	}
	if params.ReportShort != nil {
		add("report_short", *params.ReportShort)
	}
	if params.Plagiarism != nil {
		add("plagiarism", *params.Plagiarism)
	}
	if params.LegalCitation != nil {
		add("legal_citation", *params.LegalCitation)
	}
	if params.SelfCitation != nil {
		add("self_citation", *params.SelfCitation)
	}
	if params.Suspicious != nil {
		add("suspicious", *params.Suspicious)
	}
	if params.ErrorText != nil {
		add("error", *params.ErrorText)
	} else if params.ClearError {
		sets = append(sets, "error = NULL")
	}
	if params.PendingRemoval != nil {
		add("pending_removal", *params.PendingRemoval)
	}
	if params.UploadStart != nil {
		add("upload_start", *params.UploadStart)
	}
	if params.UploadEnd != nil {
		add("upload_end", *params.UploadEnd)
	}
	if params.CheckStart != nil {
		add("check_start", *params.CheckStart)
	}
	if params.CheckEnd != nil {
		add("check_end", *params.CheckEnd)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE queue_documents SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update queue document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check queue document update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListEligibleForUpload selects rows awaiting upload, oldest first. Rows in
// wait status are only picked when their module policy runs automatically;
// error-retry rows are picked regardless since they already passed admission.
func (r *DocumentRepository) ListEligibleForUpload(ctx context.Context, limit int) ([]models.QueueDocument, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + prefixedDocumentColumns("d") + `
	FROM queue_documents d
	JOIN module_policies p ON p.cmid = d.cmid AND p.courseid = d.courseid
	WHERE (d.status = $1 AND p.mode = $2) OR d.status = $3
	ORDER BY d.added_at ASC
	LIMIT $4`
	var docs []models.QueueDocument
	err := r.db.SelectContext(ctx, &docs, query,
		models.StatusWaitUpload, models.ModeAutomatic, models.StatusErrorUploading, limit)
	if err != nil {
		return nil, fmt.Errorf("list upload-eligible documents: %w", err)
	}
	return docs, nil
}

// ListInFlight selects rows with a pending remote check or index retry,
// oldest first.
func (r *DocumentRepository) ListInFlight(ctx context.Context, limit int) ([]models.QueueDocument, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + documentColumns + ` FROM queue_documents
	WHERE status IN ($1, $2, $3, $4, $5)
	ORDER BY added_at ASC
	LIMIT $6`
	var docs []models.QueueDocument
	err := r.db.SelectContext(ctx, &docs, query,
		models.StatusUploaded, models.StatusChecking,
		models.StatusErrorChecking, models.StatusErrorGetStatus, models.StatusErrorIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("list in-flight documents: %w", err)
	}
	return docs, nil
}

// ListSuperseded returns indexed rows for the same author and parent object
// but a different answer, i.e. prior attempts made obsolete by an edit.
func (r *DocumentRepository) ListSuperseded(ctx context.Context, doc *models.QueueDocument) ([]models.QueueDocument, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + documentColumns + ` FROM queue_documents
	WHERE doctype = $1 AND userid = $2 AND status = $3 AND answerid <> $4`)
	args := []interface{}{doc.DocType, doc.UserID, models.StatusInIndex, doc.AnswerID}

	switch {
	case doc.Discussion != nil:
		args = append(args, *doc.Discussion)
		builder.WriteString(fmt.Sprintf(" AND discussion = $%d", len(args)))
	case doc.Assignment != nil:
		args = append(args, *doc.Assignment)
		builder.WriteString(fmt.Sprintf(" AND assignment = $%d", len(args)))
	default:
		args = append(args, doc.CmID)
		builder.WriteString(fmt.Sprintf(" AND cmid = $%d", len(args)))
	}

	var docs []models.QueueDocument
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list superseded documents: %w", err)
	}
	return docs, nil
}

// ListByModule returns rows for one course module, newest first.
func (r *DocumentRepository) ListByModule(ctx context.Context, cmID int64, limit, offset int) ([]models.QueueDocument, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + documentColumns + ` FROM queue_documents
	WHERE cmid = $1 ORDER BY added_at DESC LIMIT $2 OFFSET $3`
	var docs []models.QueueDocument
	if err := r.db.SelectContext(ctx, &docs, query, cmID, limit, offset); err != nil {
		return nil, fmt.Errorf("list module documents: %w", err)
	}
	return docs, nil
}

// CountInStatus counts a user's rows in one status within a module. Used as
// the in-flight duplicate guard before indexing.
func (r *DocumentRepository) CountInStatus(ctx context.Context, cmID, userID int64, status models.DocStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM queue_documents WHERE cmid = $1 AND userid = $2 AND status = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, cmID, userID, status); err != nil {
		return 0, fmt.Errorf("count documents in status: %w", err)
	}
	return count, nil
}

// Claim acquires a short per-row lease so the manual path and the sweeps
// never drive the same row's remote operations concurrently. Expired leases
// are taken over, which covers actors that died mid-operation.
func (r *DocumentRepository) Claim(ctx context.Context, id string, until time.Time) (bool, error) {
	const query = `UPDATE queue_documents SET claimed_until = $2
	WHERE id = $1 AND (claimed_until IS NULL OR claimed_until < NOW())`
	res, err := r.db.ExecContext(ctx, query, id, until)
	if err != nil {
		return false, fmt.Errorf("claim queue document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check queue document claim rows: %w", err)
	}
	return affected == 1, nil
}

// Release clears the row lease.
func (r *DocumentRepository) Release(ctx context.Context, id string) error {
	const query = `UPDATE queue_documents SET claimed_until = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("release queue document: %w", err)
	}
	return nil
}

// IncrementSelfChecks bumps the owning student's self-check counter.
func (r *DocumentRepository) IncrementSelfChecks(ctx context.Context, id string) error {
	const query = `UPDATE queue_documents SET stud_check = stud_check + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("increment self checks: %w", err)
	}
	return nil
}

// Delete removes a superseded row. Queue rows are never hard-deleted outside
// the supersede path.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM queue_documents WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete queue document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check queue document delete rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func prefixedDocumentColumns(alias string) string {
	cols := strings.Split(documentColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
