package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

type actionLogStore interface {
	Insert(ctx context.Context, entry *models.ActionLogEntry) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type policyReader interface {
	Get(ctx context.Context, courseID, cmID int64) (*models.CourseModulePolicy, error)
}

// ActionLogService records lifecycle transitions. Every entry snapshots the
// policy in effect at call time as text, since the live policy may change
// after the fact.
type ActionLogService struct {
	store    actionLogStore
	policies policyReader
	logger   *zap.Logger
}

// NewActionLogService constructs the recorder.
func NewActionLogService(store actionLogStore, policies policyReader, logger *zap.Logger) *ActionLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionLogService{store: store, policies: policies, logger: logger}
}

// RecordParams carries one transition's audit context.
type RecordParams struct {
	Doc        *models.QueueDocument
	Action     models.ActionCode
	Initiator  string
	ErrorText  string
	ReportLink string
}

// Record appends one audit entry. A failure to write the log never fails the
// transition itself; it is logged and swallowed.
func (s *ActionLogService) Record(ctx context.Context, params RecordParams) {
	if params.Doc == nil {
		return
	}
	doc := params.Doc

	policy, err := s.policies.Get(ctx, doc.CourseID, doc.CmID)
	if err != nil {
		s.logger.Warn("action log policy lookup failed",
			zap.String("doc_id", doc.ID), zap.Error(err))
	}
	if policy != nil && !policy.ActionLogging {
		return
	}

	entry := &models.ActionLogEntry{
		DocID:      &doc.ID,
		ExternalID: doc.ExternalID,
		Action:     params.Action,
		CourseID:   doc.CourseID,
		CmID:       doc.CmID,
		Assignment: doc.Assignment,
		Discussion: doc.Discussion,
		UserID:     doc.UserID,
		AnswerID:   doc.AnswerID,
		Status:     doc.Status,
		Initiator:  params.Initiator,
		ErrorText:  params.ErrorText,
	}
	if params.ReportLink != "" {
		entry.ReportLink = &params.ReportLink
	}
	if policy != nil {
		if snapshot, err := json.Marshal(policy); err == nil {
			entry.PolicySnapshot = string(snapshot)
		}
	}

	if err := s.store.Insert(ctx, entry); err != nil {
		s.logger.Error("action log write failed",
			zap.String("doc_id", doc.ID),
			zap.String("action", params.Action.String()),
			zap.Error(err))
	}
}

// PurgeOlderThan removes entries past the retention window.
func (s *ActionLogService) PurgeOlderThan(ctx context.Context, months int) (int64, error) {
	if months <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, -months, 0)
	return s.store.PurgeOlderThan(ctx, cutoff)
}
