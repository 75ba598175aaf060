package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/repository"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
)

type indexDocumentStore interface {
	UpdateFields(ctx context.Context, id string, params repository.UpdateDocumentParams) error
	CountInStatus(ctx context.Context, cmID, userID int64, status models.DocStatus) (int, error)
}

type transitionRecorder interface {
	Record(ctx context.Context, params RecordParams)
}

// IndexServiceConfig bounds the removal confirmation polling. The wait is
// bounded by PollBudget instead of looping until the remote answers.
type IndexServiceConfig struct {
	PollInterval time.Duration
	PollBudget   time.Duration
}

// IndexService adds documents to, and removes them from, the remote
// searchable index.
type IndexService struct {
	docs    indexDocumentStore
	client  verifier.Client
	audit   transitionRecorder
	metrics *MetricsService
	logger  *zap.Logger
	cfg     IndexServiceConfig
}

// NewIndexService constructs the index manager.
func NewIndexService(docs indexDocumentStore, client verifier.Client, audit transitionRecorder, metrics *MetricsService, logger *zap.Logger, cfg IndexServiceConfig) *IndexService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 400 * time.Millisecond
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 30 * time.Second
	}
	return &IndexService{docs: docs, client: client, audit: audit, metrics: metrics, logger: logger, cfg: cfg}
}

// Retract removes the document from the remote index and waits, within the
// poll budget, for the remote to confirm removal. A no-op when the row never
// reached the remote service.
func (s *IndexService) Retract(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	if doc.ExternalID == nil || *doc.ExternalID == "" {
		return nil
	}
	externalID := *doc.ExternalID

	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionIndexRemoveStart, Initiator: initiator})

	start := time.Now()
	err := s.client.SetIndexFlag(ctx, externalID, false)
	s.metrics.ObserveRemoteCall("set_index_flag", time.Since(start), err)
	if err != nil {
		return s.failRetraction(ctx, doc, initiator, fmt.Errorf("retract %s: %w", externalID, err))
	}

	deadline := time.Now().Add(s.cfg.PollBudget)
	for {
		start := time.Now()
		info, err := s.client.GetDocumentInfo(ctx, externalID)
		s.metrics.ObserveRemoteCall("get_document_info", time.Since(start), err)
		if err != nil {
			// Do not keep waiting on a bad remote id.
			return s.failRetraction(ctx, doc, initiator, fmt.Errorf("confirm retraction of %s: %w", externalID, err))
		}
		if !info.StillIndexed {
			break
		}
		if time.Now().After(deadline) {
			return s.failRetraction(ctx, doc, initiator, fmt.Errorf("retraction of %s not confirmed within %s", externalID, s.cfg.PollBudget))
		}

		select {
		case <-ctx.Done():
			return s.failRetraction(ctx, doc, initiator, ctx.Err())
		case <-time.After(s.cfg.PollInterval):
		}
	}

	if err := s.transition(ctx, doc, models.StatusChecked); err != nil {
		return err
	}
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionIndexRemoveEnd, Initiator: initiator})
	s.logger.Info("document retracted from index",
		zap.String("doc_id", doc.ID), zap.String("externalid", externalID))
	return nil
}

// AdmitToIndex flags the document as searchable. Skipped while the same
// author still has an in-flight check in the module, to avoid indexing a
// document whose duplicate is about to finish.
func (s *IndexService) AdmitToIndex(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	if doc.ExternalID == nil || *doc.ExternalID == "" {
		return nil
	}

	inFlight, err := s.docs.CountInStatus(ctx, doc.CmID, doc.UserID, models.StatusChecking)
	if err != nil {
		return fmt.Errorf("index admission guard: %w", err)
	}
	if inFlight > 0 {
		s.logger.Debug("index admission deferred, sibling check in flight",
			zap.String("doc_id", doc.ID), zap.Int64("userid", doc.UserID))
		return nil
	}

	start := time.Now()
	err = s.client.SetIndexFlag(ctx, *doc.ExternalID, true)
	s.metrics.ObserveRemoteCall("set_index_flag", time.Since(start), err)
	if err != nil {
		return s.failIndex(ctx, doc, initiator, false, fmt.Errorf("admit %s to index: %w", *doc.ExternalID, err))
	}

	if err := s.transition(ctx, doc, models.StatusInIndex); err != nil {
		return err
	}
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionIndexAdd, Initiator: initiator})
	s.metrics.RecordTransition(models.StatusInIndex.String())
	return nil
}

func (s *IndexService) transition(ctx context.Context, doc *models.QueueDocument, status models.DocStatus) error {
	pending := false
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &status, ClearError: true, PendingRemoval: &pending}); err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	doc.Status = status
	doc.ErrorText = nil
	doc.PendingRemoval = false
	return nil
}

// failRetraction parks the row with the removal direction recorded, so a retry
// removes the document again instead of re-admitting it.
func (s *IndexService) failRetraction(ctx context.Context, doc *models.QueueDocument, initiator string, cause error) error {
	return s.failIndex(ctx, doc, initiator, true, cause)
}

func (s *IndexService) failIndex(ctx context.Context, doc *models.QueueDocument, initiator string, pendingRemoval bool, cause error) error {
	status := models.StatusErrorIndex
	msg := cause.Error()
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &status, ErrorText: &msg, PendingRemoval: &pendingRemoval}); err != nil {
		s.logger.Error("failed to record index error", zap.String("doc_id", doc.ID), zap.Error(err))
	}
	doc.Status = status
	doc.ErrorText = &msg
	doc.PendingRemoval = pendingRemoval
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionError, Initiator: initiator, ErrorText: msg})
	return cause
}
