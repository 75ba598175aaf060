package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/models"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
)

type queueDocumentReader interface {
	GetByID(ctx context.Context, id string) (*models.QueueDocument, error)
	ListByModule(ctx context.Context, cmID int64, limit, offset int) ([]models.QueueDocument, error)
}

type actionLogReader interface {
	ListByDocument(ctx context.Context, docID string) ([]models.ActionLogEntry, error)
	ListByModule(ctx context.Context, cmID int64, limit int) ([]models.ActionLogEntry, error)
}

// QueueService is the read-only admin view over the verification queue.
type QueueService struct {
	docs   queueDocumentReader
	logs   actionLogReader
	logger *zap.Logger
}

// NewQueueService constructs the queue reader.
func NewQueueService(docs queueDocumentReader, logs actionLogReader, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueService{docs: docs, logs: logs, logger: logger}
}

// ListModule returns the queue rows of one course module.
func (s *QueueService) ListModule(ctx context.Context, cmID int64, limit, offset int) (*dto.QueueListResponse, error) {
	docs, err := s.docs.ListByModule(ctx, cmID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list module queue")
	}
	return &dto.QueueListResponse{Documents: docs}, nil
}

// GetDocument returns one queue row with its audit trail.
func (s *QueueService) GetDocument(ctx context.Context, id string) (*dto.DocumentDetail, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "queue document not found")
	}

	entries, err := s.logs.ListByDocument(ctx, id)
	if err != nil {
		s.logger.Warn("audit trail lookup failed", zap.String("doc_id", id), zap.Error(err))
		entries = nil
	}
	return &dto.DocumentDetail{Document: *doc, ActionLog: entries}, nil
}

// ModuleActionLog returns recent audit entries for one course module.
func (s *QueueService) ModuleActionLog(ctx context.Context, cmID int64, limit int) ([]models.ActionLogEntry, error) {
	entries, err := s.logs.ListByModule(ctx, cmID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list module audit trail")
	}
	return entries, nil
}
