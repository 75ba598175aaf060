package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/repository"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
	"github.com/noah-isme/sma-originality-api/pkg/config"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/fingerprint"
)

type verificationDocumentStore interface {
	FindByTypeID(ctx context.Context, doctype models.DocType, typeID string) (*models.QueueDocument, error)
	UpdateFields(ctx context.Context, id string, params repository.UpdateDocumentParams) error
	ListSuperseded(ctx context.Context, doc *models.QueueDocument) ([]models.QueueDocument, error)
	Delete(ctx context.Context, id string) error
	IncrementSelfChecks(ctx context.Context, id string) error
	Claim(ctx context.Context, id string, until time.Time) (bool, error)
	Release(ctx context.Context, id string) error
}

type indexManager interface {
	Retract(ctx context.Context, doc *models.QueueDocument, initiator string) error
	AdmitToIndex(ctx context.Context, doc *models.QueueDocument, initiator string) error
}

// VerificationConfig tunes the synchronous check-now path.
type VerificationConfig struct {
	// ManualPollDelay is the wait before the single status poll. The remote
	// service needs a moment after check start before status is meaningful.
	ManualPollDelay time.Duration
	// ClaimTTL bounds the per-row lease taken before remote operations. An
	// actor that dies mid-operation frees the row once the lease expires.
	ClaimTTL   time.Duration
	Attributes config.AttributesConfig
}

// VerificationService drives a document through upload, check and report
// retrieval synchronously, on behalf of a user viewing the submission.
type VerificationService struct {
	docs      verificationDocumentStore
	policies  policyReader
	resolvers contentResolvers
	client    verifier.Client
	index     indexManager
	audit     transitionRecorder
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       VerificationConfig
}

// NewVerificationService constructs the manual check driver.
func NewVerificationService(docs verificationDocumentStore, policies policyReader, resolvers contentResolvers, client verifier.Client, index indexManager, audit transitionRecorder, metrics *MetricsService, logger *zap.Logger, cfg VerificationConfig) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ManualPollDelay <= 0 {
		cfg.ManualPollDelay = 5 * time.Second
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 2 * time.Minute
	}
	return &VerificationService{
		docs:      docs,
		policies:  policies,
		resolvers: resolvers,
		client:    client,
		index:     index,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// CheckNow processes one document synchronously and returns a render-ready
// result. Documents already in a final state are rendered without touching
// the remote service, except for a report link refresh.
func (s *VerificationService) CheckNow(ctx context.Context, claims *models.JWTClaims, req dto.CheckRequest) (*dto.CheckResult, error) {
	doc, err := s.locate(ctx, req)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, appErrors.ErrNotInQueue
	}

	policy, err := s.policies.Get(ctx, doc.CourseID, doc.CmID)
	if err != nil {
		return nil, err
	}
	if policy.Mode == models.ModeDisabled {
		return nil, appErrors.ErrCheckingDisabled
	}
	if !claims.Checker && policy.LimitsSelfChecks() && doc.StudentChecks >= policy.StudentLimit {
		return nil, appErrors.ErrCheckLimit
	}

	initiator := initiatorUser(claims.UserID)
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionDocProcessingStart, Initiator: initiator})

	if err := s.retractSiblings(ctx, doc, initiator); err != nil {
		s.logger.Warn("sibling retraction failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}

	switch {
	case doc.Status.Terminal(), doc.Status == models.StatusErrorCheck:
		// Final rejections render as stored; nothing to retry.

	case doc.Status == models.StatusChecked, doc.Status == models.StatusInIndex, doc.Status == models.StatusErrorGetReport:
		s.refreshReport(ctx, doc, initiator)

	case doc.Status == models.StatusUploading, doc.Status == models.StatusChecking && doc.ExternalID == nil:
		// Another actor holds the row; render the in-flight state.

	default:
		claimed, err := s.claim(ctx, doc)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// Another actor holds the lease; render the current state.
			s.logger.Debug("row lease held elsewhere", zap.String("doc_id", doc.ID))
			break
		}
		if !claims.Checker {
			if err := s.docs.IncrementSelfChecks(ctx, doc.ID); err != nil {
				s.logger.Warn("self-check counter update failed", zap.String("doc_id", doc.ID), zap.Error(err))
			} else {
				doc.StudentChecks++
			}
		}
		if err := s.process(ctx, doc, policy, initiator); err != nil {
			// The failure status is already persisted; render it.
			s.logger.Info("manual check ended with error",
				zap.String("doc_id", doc.ID),
				zap.String("status", doc.Status.String()),
				zap.Error(err))
		}
		s.release(ctx, doc)
	}

	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionDocProcessingEnd, Initiator: initiator})
	return s.render(doc, claims.Checker), nil
}

// locate finds the queue row for the request. Text requests that miss on the
// normalized digest are retried against the raw digest and migrated forward.
func (s *VerificationService) locate(ctx context.Context, req dto.CheckRequest) (*models.QueueDocument, error) {
	doc, err := s.docs.FindByTypeID(ctx, req.DocType, req.TypeID)
	if err != nil {
		return nil, err
	}
	if doc != nil || req.ContentHex == "" {
		return doc, nil
	}

	text, err := fingerprint.DecodeClearHex(req.ContentHex)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed content encoding")
	}
	current := fingerprint.Hash(text)
	if current != req.TypeID {
		if doc, err = s.docs.FindByTypeID(ctx, req.DocType, current); err != nil || doc != nil {
			return doc, err
		}
	}
	legacy := fingerprint.LegacyHash(text)
	if legacy == current {
		return nil, nil
	}
	doc, err = s.docs.FindByTypeID(ctx, req.DocType, legacy)
	if err != nil || doc == nil {
		return doc, err
	}
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{TypeID: &current}); err != nil {
		return nil, fmt.Errorf("migrate legacy fingerprint: %w", err)
	}
	doc.TypeID = current
	return doc, nil
}

// process uploads the document if needed, starts the check and performs one
// delayed status poll. Every failure is mapped onto a queue status before the
// error returns, so the caller can always render the row.
func (s *VerificationService) process(ctx context.Context, doc *models.QueueDocument, policy *models.CourseModulePolicy, initiator string) error {
	if doc.ExternalID == nil || *doc.ExternalID == "" {
		if err := s.upload(ctx, doc, initiator); err != nil {
			return err
		}
	} else if err := s.refreshAttributes(ctx, doc, initiator); err != nil {
		// Attributes are advisory metadata; a failed refresh never blocks
		// the check itself.
		s.logger.Warn("attribute refresh failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}

	if doc.Status != models.StatusChecking {
		if err := s.startCheck(ctx, doc, policy, initiator); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.ManualPollDelay):
	}

	return s.pollOnce(ctx, doc, policy, initiator)
}

// upload resolves the content and pushes it to the remote service. The row is
// flipped to the uploading status before the network call so concurrent
// actors observe the in-flight claim.
func (s *VerificationService) upload(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	resolver, err := s.resolvers.For(doc.DocType)
	if err != nil {
		return err
	}
	ref := contentRef(doc)

	content, err := resolver.ResolveContent(ctx, ref)
	if err != nil {
		return s.failTo(ctx, doc, models.StatusErrorUploading, initiator, err)
	}
	if content.Empty() {
		status := models.StatusNotFound
		if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &status}); err != nil {
			return err
		}
		doc.Status = status
		return appErrors.ErrContentMissing
	}

	uploading := models.StatusUploading
	now := time.Now().UTC()
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &uploading, UploadStart: &now, ClearError: true}); err != nil {
		return err
	}
	doc.Status = uploading
	doc.UploadStart = &now
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionUploadStart, Initiator: initiator})

	naming, err := resolver.ResolveNaming(ctx, ref)
	if err != nil {
		s.logger.Warn("naming resolution failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}
	attrs := assembleAttributes(s.cfg.Attributes, naming, doc.UserID)

	start := time.Now()
	externalID, err := s.client.Upload(ctx, uploadFilename(doc, content), uploadData(content), attrs)
	s.metrics.ObserveRemoteCall("upload", time.Since(start), err)
	if err != nil {
		if verifier.IsRejected(err) {
			return s.failTo(ctx, doc, models.StatusInvalidFileType, initiator, err)
		}
		return s.failTo(ctx, doc, models.StatusErrorUploading, initiator, err)
	}

	uploaded := models.StatusUploaded
	end := time.Now().UTC()
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &uploaded, ExternalID: &externalID, UploadEnd: &end}); err != nil {
		return err
	}
	doc.Status = uploaded
	doc.ExternalID = &externalID
	doc.UploadEnd = &end
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionUploadEnd, Initiator: initiator})
	s.metrics.RecordTransition(uploaded.String())
	return nil
}

func (s *VerificationService) startCheck(ctx context.Context, doc *models.QueueDocument, policy *models.CourseModulePolicy, initiator string) error {
	start := time.Now()
	err := s.client.StartCheck(ctx, *doc.ExternalID, policy.ExcludedSections)
	s.metrics.ObserveRemoteCall("start_check", time.Since(start), err)
	if err != nil {
		return s.failTo(ctx, doc, models.StatusErrorChecking, initiator, err)
	}

	checking := models.StatusChecking
	now := time.Now().UTC()
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &checking, CheckStart: &now, ClearError: true}); err != nil {
		return err
	}
	doc.Status = checking
	doc.CheckStart = &now
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionCheckStart, Initiator: initiator})
	s.metrics.RecordTransition(checking.String())
	return nil
}

// pollOnce performs the single status poll of the manual path. A check the
// remote reports as absent is restarted rather than failed, since the remote
// occasionally loses freshly started checks.
func (s *VerificationService) pollOnce(ctx context.Context, doc *models.QueueDocument, policy *models.CourseModulePolicy, initiator string) error {
	start := time.Now()
	result, err := s.client.PollStatus(ctx, *doc.ExternalID)
	s.metrics.ObserveRemoteCall("poll_status", time.Since(start), err)
	if err != nil {
		return s.failTo(ctx, doc, models.StatusErrorGetStatus, initiator, err)
	}

	switch result.State {
	case verifier.StateReady:
		return s.finishCheck(ctx, doc, policy, result, initiator)
	case verifier.StateFailed:
		return s.failTo(ctx, doc, models.StatusErrorCheck, initiator, fmt.Errorf("remote check failed: %s", result.FailureDetail))
	case verifier.StateNone:
		return s.startCheck(ctx, doc, policy, initiator)
	default:
		// Still in progress; the row stays in checking for the sweeps.
		return nil
	}
}

// finishCheck persists scores and report links and admits the document to the
// index when the module policy asks for it.
func (s *VerificationService) finishCheck(ctx context.Context, doc *models.QueueDocument, policy *models.CourseModulePolicy, result *verifier.StatusResult, initiator string) error {
	checked := models.StatusChecked
	now := time.Now().UTC()
	params := repository.UpdateDocumentParams{Status: &checked, CheckEnd: &now, ClearError: true}
	if result.Scores != nil {
		params.Plagiarism = &result.Scores.Plagiarism
		params.LegalCitation = &result.Scores.LegalCitation
		params.SelfCitation = &result.Scores.SelfCitation
		params.Suspicious = &result.Scores.Suspicious
	}
	if result.Links != nil {
		params.ReportEdit = &result.Links.Edit
		params.ReportRead = &result.Links.ReadOnly
		params.ReportShort = &result.Links.Short
	}
	if err := s.docs.UpdateFields(ctx, doc.ID, params); err != nil {
		return err
	}
	doc.Status = checked
	doc.CheckEnd = &now
	doc.ErrorText = nil
	applyResult(doc, result)

	reportLink := ""
	if doc.ReportRead != nil {
		reportLink = *doc.ReportRead
	}
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionVerificationEnd, Initiator: initiator, ReportLink: reportLink})
	s.metrics.RecordTransition(checked.String())

	if originality := doc.Originality(); originality != nil && *originality < 0 {
		s.logger.Warn("originality below zero",
			zap.String("doc_id", doc.ID), zap.Float64("originality", *originality))
	}

	if policy.AddToIndex {
		if err := s.index.AdmitToIndex(ctx, doc, initiator); err != nil {
			return err
		}
	}
	return nil
}

// refreshReport re-fetches report links for an already finished check so the
// viewer never renders an expired link. Failures park the row in the report
// error status; the next manual view retries from here.
func (s *VerificationService) refreshReport(ctx context.Context, doc *models.QueueDocument, initiator string) {
	if doc.ExternalID == nil || *doc.ExternalID == "" {
		return
	}

	start := time.Now()
	result, err := s.client.FetchReport(ctx, *doc.ExternalID)
	s.metrics.ObserveRemoteCall("fetch_report", time.Since(start), err)
	if err != nil {
		_ = s.failTo(ctx, doc, models.StatusErrorGetReport, initiator, err)
		return
	}
	if result.Links == nil {
		return
	}

	params := repository.UpdateDocumentParams{
		ReportEdit:  &result.Links.Edit,
		ReportRead:  &result.Links.ReadOnly,
		ReportShort: &result.Links.Short,
	}
	if doc.Status == models.StatusErrorGetReport {
		checked := models.StatusChecked
		params.Status = &checked
		params.ClearError = true
	}
	if err := s.docs.UpdateFields(ctx, doc.ID, params); err != nil {
		s.logger.Warn("report refresh persist failed", zap.String("doc_id", doc.ID), zap.Error(err))
		return
	}
	if params.Status != nil {
		doc.Status = *params.Status
		doc.ErrorText = nil
	}
	doc.ReportEdit = &result.Links.Edit
	doc.ReportRead = &result.Links.ReadOnly
	doc.ReportShort = &result.Links.Short
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionReportRefresh, Initiator: initiator, ReportLink: result.Links.ReadOnly})
}

// refreshAttributes re-sends the document attributes for a row that reuses an
// earlier upload, so renamed courses and modules reach the remote service.
func (s *VerificationService) refreshAttributes(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	resolver, err := s.resolvers.For(doc.DocType)
	if err != nil {
		return err
	}
	naming, err := resolver.ResolveNaming(ctx, contentRef(doc))
	if err != nil {
		return err
	}
	attrs := assembleAttributes(s.cfg.Attributes, naming, doc.UserID)
	if len(attrs) == 0 {
		return nil
	}

	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionAttributeLoadStart, Initiator: initiator})
	start := time.Now()
	err = s.client.SetAttributes(ctx, *doc.ExternalID, attrs)
	s.metrics.ObserveRemoteCall("set_attributes", time.Since(start), err)
	if err != nil {
		s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionError, Initiator: initiator, ErrorText: err.Error()})
		return err
	}
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionAttributeLoadEnd, Initiator: initiator})
	return nil
}

// claim takes the per-row lease that serializes remote operations between
// the manual path and the sweeps.
func (s *VerificationService) claim(ctx context.Context, doc *models.QueueDocument) (bool, error) {
	return s.docs.Claim(ctx, doc.ID, time.Now().UTC().Add(s.cfg.ClaimTTL))
}

func (s *VerificationService) release(ctx context.Context, doc *models.QueueDocument) {
	if err := s.docs.Release(ctx, doc.ID); err != nil {
		s.logger.Warn("row lease release failed", zap.String("doc_id", doc.ID), zap.Error(err))
	}
}

func (s *VerificationService) retractSiblings(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	superseded, err := s.docs.ListSuperseded(ctx, doc)
	if err != nil {
		return err
	}
	for i := range superseded {
		old := &superseded[i]
		if err := s.index.Retract(ctx, old, initiator); err != nil {
			return err
		}
		if err := s.docs.Delete(ctx, old.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *VerificationService) failTo(ctx context.Context, doc *models.QueueDocument, status models.DocStatus, initiator string, cause error) error {
	msg := cause.Error()
	if err := s.docs.UpdateFields(ctx, doc.ID, repository.UpdateDocumentParams{Status: &status, ErrorText: &msg}); err != nil {
		s.logger.Error("failed to persist error status", zap.String("doc_id", doc.ID), zap.Error(err))
	}
	doc.Status = status
	doc.ErrorText = &msg
	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionError, Initiator: initiator, ErrorText: msg})
	s.metrics.RecordTransition(status.String())
	return cause
}

// render shapes a queue row into the check-now response. Checkers get the
// editable report, authors the read-only one.
func (s *VerificationService) render(doc *models.QueueDocument, checker bool) *dto.CheckResult {
	result := &dto.CheckResult{
		DocID:       doc.ID,
		Status:      doc.Status,
		StatusLabel: doc.Status.String(),
	}

	switch doc.Status {
	case models.StatusUploading, models.StatusUploaded, models.StatusChecking:
		result.Checking = true
	}

	result.Plagiarism = doc.Plagiarism
	result.LegalCitation = doc.LegalCitation
	result.SelfCitation = doc.SelfCitation
	result.Originality = doc.Originality()
	result.Suspicious = doc.Suspicious

	if checker && doc.ReportEdit != nil {
		result.ReportLink = *doc.ReportEdit
	} else if doc.ReportRead != nil {
		result.ReportLink = *doc.ReportRead
	} else if doc.ReportShort != nil {
		result.ReportLink = *doc.ReportShort
	}

	if doc.ErrorText != nil {
		result.Error = *doc.ErrorText
	}
	return result
}

func contentRef(doc *models.QueueDocument) models.ContentRef {
	return models.ContentRef{
		DocType:    doc.DocType,
		TypeID:     doc.TypeID,
		CourseID:   doc.CourseID,
		CmID:       doc.CmID,
		UserID:     doc.UserID,
		AnswerID:   doc.AnswerID,
		Discussion: doc.Discussion,
		Assignment: doc.Assignment,
	}
}

func uploadFilename(doc *models.QueueDocument, content *models.ResolvedContent) string {
	if content.IsFile && content.Filename != "" {
		return content.Filename
	}
	return fmt.Sprintf("%s_%d.html", doc.DocType, doc.AnswerID)
}

func uploadData(content *models.ResolvedContent) []byte {
	if content.IsFile {
		return content.Data
	}
	return []byte(content.Text)
}

func applyResult(doc *models.QueueDocument, result *verifier.StatusResult) {
	if result.Scores != nil {
		doc.Plagiarism = &result.Scores.Plagiarism
		doc.LegalCitation = &result.Scores.LegalCitation
		doc.SelfCitation = &result.Scores.SelfCitation
		doc.Suspicious = result.Scores.Suspicious
	}
	if result.Links != nil {
		doc.ReportEdit = &result.Links.Edit
		doc.ReportRead = &result.Links.ReadOnly
		doc.ReportShort = &result.Links.Short
	}
}
