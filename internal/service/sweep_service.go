package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/models"
)

const (
	initiatorUploadSweep  = "sweep:upload"
	initiatorStatusSweep  = "sweep:status"
	initiatorCleanupSweep = "sweep:cleanup"
)

type sweepDocumentStore interface {
	ListEligibleForUpload(ctx context.Context, limit int) ([]models.QueueDocument, error)
	ListInFlight(ctx context.Context, limit int) ([]models.QueueDocument, error)
	Delete(ctx context.Context, id string) error
}

type retentionPurger interface {
	PurgeOlderThan(ctx context.Context, months int) (int64, error)
}

// SweepServiceConfig bounds one sweep pass.
type SweepServiceConfig struct {
	BatchSize       int
	RetentionMonths int
}

// SweepService runs the periodic queue passes: uploading waiting rows,
// advancing in-flight checks and purging expired audit entries. Each row is
// handled in isolation so one bad document never stalls the batch.
type SweepService struct {
	docs     sweepDocumentStore
	policies policyReader
	driver   *VerificationService
	index    indexManager
	logs     retentionPurger
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      SweepServiceConfig
}

// NewSweepService constructs the sweep runner on top of the manual driver,
// which owns the upload/check/poll steps.
func NewSweepService(docs sweepDocumentStore, policies policyReader, driver *VerificationService, index indexManager, logs retentionPurger, metrics *MetricsService, logger *zap.Logger, cfg SweepServiceConfig) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &SweepService{
		docs:     docs,
		policies: policies,
		driver:   driver,
		index:    index,
		logs:     logs,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// UploadAndCheckSweep pushes waiting and upload-retry rows to the remote
// service and starts their checks, oldest first.
func (s *SweepService) UploadAndCheckSweep(ctx context.Context) (dto.SweepResult, error) {
	started := time.Now()
	var result dto.SweepResult

	docs, err := s.docs.ListEligibleForUpload(ctx, s.cfg.BatchSize)
	if err != nil {
		return result, err
	}

	for i := range docs {
		doc := &docs[i]
		if err := s.uploadOne(ctx, doc); err != nil {
			result.Failed++
			s.logger.Warn("upload sweep row failed",
				zap.String("doc_id", doc.ID),
				zap.String("status", doc.Status.String()),
				zap.Error(err))
			continue
		}
		result.Processed++
	}

	s.metrics.ObserveSweep("upload", time.Since(started), result.Processed)
	s.logger.Info("upload sweep finished",
		zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	return result, nil
}

func (s *SweepService) uploadOne(ctx context.Context, doc *models.QueueDocument) error {
	policy, err := s.policies.Get(ctx, doc.CourseID, doc.CmID)
	if err != nil {
		return err
	}

	claimed, err := s.driver.claim(ctx, doc)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug("row lease held elsewhere, skipped", zap.String("doc_id", doc.ID))
		return nil
	}
	defer s.driver.release(ctx, doc)

	if err := s.driver.retractSiblings(ctx, doc, initiatorUploadSweep); err != nil {
		s.logger.Warn("sibling retraction failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}

	if doc.ExternalID == nil || *doc.ExternalID == "" {
		if err := s.driver.upload(ctx, doc, initiatorUploadSweep); err != nil {
			return err
		}
	}
	return s.driver.startCheck(ctx, doc, policy, initiatorUploadSweep)
}

// StatusControlSweep advances rows with a pending remote check or index
// retry. The poll happens without the manual path's pre-poll delay since the
// sweep interval already gives the remote time.
func (s *SweepService) StatusControlSweep(ctx context.Context) (dto.SweepResult, error) {
	started := time.Now()
	var result dto.SweepResult

	docs, err := s.docs.ListInFlight(ctx, s.cfg.BatchSize)
	if err != nil {
		return result, err
	}

	for i := range docs {
		doc := &docs[i]
		if err := s.advanceOne(ctx, doc); err != nil {
			result.Failed++
			s.logger.Warn("status sweep row failed",
				zap.String("doc_id", doc.ID),
				zap.String("status", doc.Status.String()),
				zap.Error(err))
			continue
		}
		result.Processed++
	}

	s.metrics.ObserveSweep("status", time.Since(started), result.Processed)
	s.logger.Info("status sweep finished",
		zap.Int("processed", result.Processed), zap.Int("failed", result.Failed))
	return result, nil
}

func (s *SweepService) advanceOne(ctx context.Context, doc *models.QueueDocument) error {
	policy, err := s.policies.Get(ctx, doc.CourseID, doc.CmID)
	if err != nil {
		return err
	}

	claimed, err := s.driver.claim(ctx, doc)
	if err != nil {
		return err
	}
	if !claimed {
		s.logger.Debug("row lease held elsewhere, skipped", zap.String("doc_id", doc.ID))
		return nil
	}
	defer s.driver.release(ctx, doc)

	switch doc.Status {
	case models.StatusErrorIndex:
		if doc.PendingRemoval {
			// The row was parked by a failed retraction of a superseded
			// document; retry the removal, never the admission.
			if err := s.index.Retract(ctx, doc, initiatorStatusSweep); err != nil {
				return err
			}
			return s.docs.Delete(ctx, doc.ID)
		}
		return s.index.AdmitToIndex(ctx, doc, initiatorStatusSweep)
	case models.StatusUploaded, models.StatusErrorChecking:
		return s.driver.startCheck(ctx, doc, policy, initiatorStatusSweep)
	default:
		return s.driver.pollOnce(ctx, doc, policy, initiatorStatusSweep)
	}
}

// CleanupActionLog purges audit entries past the retention window.
func (s *SweepService) CleanupActionLog(ctx context.Context) (int64, error) {
	started := time.Now()
	purged, err := s.logs.PurgeOlderThan(ctx, s.cfg.RetentionMonths)
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveSweep("cleanup", time.Since(started), int(purged))
	if purged > 0 {
		s.logger.Info("action log purged", zap.Int64("entries", purged))
	}
	return purged, nil
}
