package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/repository"
	"github.com/noah-isme/sma-originality-api/pkg/fingerprint"
)

type admissionDocumentStore interface {
	FindByIdentity(ctx context.Context, ident models.Identity) (*models.QueueDocument, error)
	Insert(ctx context.Context, doc *models.QueueDocument) error
	UpdateFields(ctx context.Context, id string, params repository.UpdateDocumentParams) error
	ListSuperseded(ctx context.Context, doc *models.QueueDocument) ([]models.QueueDocument, error)
	Delete(ctx context.Context, id string) error
}

type contentResolvers interface {
	For(doctype models.DocType) (repository.ContentResolver, error)
}

type indexRetractor interface {
	Retract(ctx context.Context, doc *models.QueueDocument, initiator string) error
}

// AdmissionConfig holds the enqueue rule tunables.
type AdmissionConfig struct {
	MinWords          int
	AllowedExtensions []string
}

// AdmissionService decides whether and how a newly observed submission enters
// the verification queue.
type AdmissionService struct {
	docs      admissionDocumentStore
	policies  policyReader
	resolvers contentResolvers
	index     indexRetractor
	audit     transitionRecorder
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       AdmissionConfig
	extSet    map[string]struct{}
}

// NewAdmissionService constructs the enqueue policy.
func NewAdmissionService(docs admissionDocumentStore, policies policyReader, resolvers contentResolvers, index indexRetractor, audit transitionRecorder, metrics *MetricsService, logger *zap.Logger, cfg AdmissionConfig) *AdmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 20
	}
	extSet := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		extSet[strings.ToLower(strings.TrimSpace(ext))] = struct{}{}
	}
	return &AdmissionService{
		docs:      docs,
		policies:  policies,
		resolvers: resolvers,
		index:     index,
		audit:     audit,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		extSet:    extSet,
	}
}

// AdmitSubmission applies the enqueue rules to one host submission event.
// Re-submission of unchanged content is a no-op returning the existing row;
// a nil document means the module policy excludes the submission entirely.
func (s *AdmissionService) AdmitSubmission(ctx context.Context, event *models.SubmissionEvent) (*models.QueueDocument, error) {
	if !event.DocType.Valid() {
		return nil, fmt.Errorf("unsupported doctype %q", event.DocType)
	}

	policy, err := s.policies.Get(ctx, event.CourseID, event.CmID)
	if err != nil {
		return nil, err
	}
	if policy.Mode == models.ModeDisabled {
		return nil, nil
	}
	if event.IsFile() && !policy.CheckFile {
		return nil, nil
	}
	if !event.IsFile() && !policy.CheckText {
		return nil, nil
	}

	typeID := event.FileID
	if !event.IsFile() {
		typeID = fingerprint.Hash(event.Content)
	}

	ident := models.Identity{
		DocType:    event.DocType,
		TypeID:     typeID,
		UserID:     event.UserID,
		AnswerID:   event.AnswerID,
		Discussion: event.Discussion,
		Assignment: event.Assignment,
	}

	// Unchanged content must find and reuse the existing row.
	if existing, err := s.docs.FindByIdentity(ctx, ident); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	// Rows created before normalization are keyed by the raw digest;
	// rewrite them forward when found.
	if !event.IsFile() {
		legacyIdent := ident
		legacyIdent.TypeID = fingerprint.LegacyHash(event.Content)
		if legacyIdent.TypeID != typeID {
			legacy, err := s.docs.FindByIdentity(ctx, legacyIdent)
			if err != nil {
				return nil, err
			}
			if legacy != nil {
				if err := s.docs.UpdateFields(ctx, legacy.ID, repository.UpdateDocumentParams{TypeID: &typeID}); err != nil {
					return nil, fmt.Errorf("migrate legacy fingerprint: %w", err)
				}
				legacy.TypeID = typeID
				return legacy, nil
			}
		}
	}

	if event.Edited() {
		if err := s.retractSuperseded(ctx, event, typeID); err != nil {
			return nil, err
		}
	}

	status, errorText, err := s.admissionStatus(ctx, event, policy)
	if err != nil {
		return nil, err
	}

	doc := &models.QueueDocument{
		DocType:       event.DocType,
		TypeID:        typeID,
		CourseID:      event.CourseID,
		CmID:          event.CmID,
		UserID:        event.UserID,
		AnswerID:      event.AnswerID,
		Discussion:    event.Discussion,
		Assignment:    event.Assignment,
		AttemptNumber: event.AttemptNumber,
		Status:        status,
	}
	if errorText != "" {
		doc.ErrorText = &errorText
	}
	if err := s.docs.Insert(ctx, doc); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, RecordParams{Doc: doc, Action: models.ActionEnqueue, Initiator: initiatorUser(event.UserID), ErrorText: errorText})
	s.metrics.RecordTransition(status.String())
	s.logger.Info("submission admitted",
		zap.String("doc_id", doc.ID),
		zap.String("doctype", string(doc.DocType)),
		zap.String("status", status.String()))
	return doc, nil
}

// retractSuperseded removes indexed rows for prior attempts of the same
// author and parent object, then deletes them. An edited answer must leave
// the index before its replacement is checked.
func (s *AdmissionService) retractSuperseded(ctx context.Context, event *models.SubmissionEvent, typeID string) error {
	scope := &models.QueueDocument{
		DocType:    event.DocType,
		TypeID:     typeID,
		CmID:       event.CmID,
		UserID:     event.UserID,
		AnswerID:   event.AnswerID,
		Discussion: event.Discussion,
		Assignment: event.Assignment,
	}
	superseded, err := s.docs.ListSuperseded(ctx, scope)
	if err != nil {
		return err
	}
	for i := range superseded {
		old := &superseded[i]
		if err := s.index.Retract(ctx, old, initiatorUser(event.UserID)); err != nil {
			return fmt.Errorf("retract superseded row %s: %w", old.ID, err)
		}
		if err := s.docs.Delete(ctx, old.ID); err != nil {
			return fmt.Errorf("delete superseded row %s: %w", old.ID, err)
		}
		s.logger.Info("superseded row retracted and deleted",
			zap.String("doc_id", old.ID), zap.Int64("answerid", old.AnswerID))
	}
	return nil
}

// admissionStatus applies the rejection rules in order and picks the initial
// waiting status for admitted rows.
func (s *AdmissionService) admissionStatus(ctx context.Context, event *models.SubmissionEvent, policy *models.CourseModulePolicy) (models.DocStatus, string, error) {
	if event.IsFile() {
		empty, err := s.fileIsEmpty(ctx, event)
		if err != nil {
			return 0, "", err
		}
		if empty {
			return models.StatusLessWords, "file is empty", nil
		}
		if !s.extensionAllowed(event.Filename) {
			return models.StatusInvalidFileType, fmt.Sprintf("file type %q is not allowed", strings.TrimPrefix(filepath.Ext(event.Filename), ".")), nil
		}
	} else if fingerprint.WordCount(event.Content) == 0 {
		return models.StatusLessWords, fmt.Sprintf("document has less than %d words", s.cfg.MinWords), nil
	}

	if event.Author.SiteAdmin || !event.Author.CanBeChecked {
		return models.StatusNoRightCheckedBy, "author is exempt from checking", nil
	}

	if !event.IsFile() && fingerprint.WordCount(event.Content) < s.cfg.MinWords {
		return models.StatusLessWords, fmt.Sprintf("document has less than %d words", s.cfg.MinWords), nil
	}

	if event.DocType == models.DocTypeAssign && !event.Submitted {
		return models.StatusWaitBlock, "", nil
	}
	return models.StatusWaitUpload, "", nil
}

func (s *AdmissionService) fileIsEmpty(ctx context.Context, event *models.SubmissionEvent) (bool, error) {
	resolver, err := s.resolvers.For(event.DocType)
	if err != nil {
		return false, err
	}
	content, err := resolver.ResolveContent(ctx, models.ContentRef{
		DocType:  event.DocType,
		TypeID:   event.FileID,
		CourseID: event.CourseID,
		CmID:     event.CmID,
		UserID:   event.UserID,
		AnswerID: event.AnswerID,
	})
	if err != nil {
		return false, err
	}
	return content.Empty(), nil
}

func (s *AdmissionService) extensionAllowed(filename string) bool {
	if len(s.extSet) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	_, ok := s.extSet[ext]
	return ok
}

func initiatorUser(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}
