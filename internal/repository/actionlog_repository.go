package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

const actionLogColumns = `id, doc_id, externalid, report_link, action, courseid, cmid, assignment,
       discussion, userid, answerid, status, initiator, error_text, policy_snapshot, created_at`

// ActionLogRepository persists the append-only audit trail.
type ActionLogRepository struct {
	db *sqlx.DB
}

// NewActionLogRepository constructs the repository.
func NewActionLogRepository(db *sqlx.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Insert appends one audit record.
func (r *ActionLogRepository) Insert(ctx context.Context, entry *models.ActionLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO action_log
	(id, doc_id, externalid, report_link, action, courseid, cmid, assignment,
	 discussion, userid, answerid, status, initiator, error_text, policy_snapshot, created_at)
	VALUES (:id, :doc_id, :externalid, :report_link, :action, :courseid, :cmid, :assignment,
	 :discussion, :userid, :answerid, :status, :initiator, :error_text, :policy_snapshot, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert action log entry: %w", err)
	}
	return nil
}

// ListByDocument returns the audit trail for one queue row, oldest first.
func (r *ActionLogRepository) ListByDocument(ctx context.Context, docID string) ([]models.ActionLogEntry, error) {
	query := `SELECT ` + actionLogColumns + ` FROM action_log WHERE doc_id = $1 ORDER BY created_at ASC`
	var entries []models.ActionLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, docID); err != nil {
		return nil, fmt.Errorf("list action log entries: %w", err)
	}
	return entries, nil
}

// ListByModule returns recent entries for one course module, newest first.
func (r *ActionLogRepository) ListByModule(ctx context.Context, cmID int64, limit int) ([]models.ActionLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + actionLogColumns + ` FROM action_log WHERE cmid = $1 ORDER BY created_at DESC LIMIT $2`
	var entries []models.ActionLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, cmID, limit); err != nil {
		return nil, fmt.Errorf("list module action log entries: %w", err)
	}
	return entries, nil
}

// PurgeOlderThan deletes entries created before the cutoff and returns how
// many were removed.
func (r *ActionLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM action_log WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge action log: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check action log purge rows: %w", err)
	}
	return affected, nil
}
