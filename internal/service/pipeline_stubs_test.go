package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/repository"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
)

func identKey(ident models.Identity) string {
	d, a := int64(0), int64(0)
	if ident.Discussion != nil {
		d = *ident.Discussion
	}
	if ident.Assignment != nil {
		a = *ident.Assignment
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d", ident.DocType, ident.TypeID, ident.UserID, ident.AnswerID, d, a)
}

// stubDocs satisfies every document store interface in this package.
type stubDocs struct {
	byIdentity map[string]*models.QueueDocument
	byTypeID   map[string]*models.QueueDocument
	byID       map[string]*models.QueueDocument

	inserted   []*models.QueueDocument
	updates    map[string][]repository.UpdateDocumentParams
	deleted    []string
	selfChecks map[string]int
	leases     map[string]time.Time

	superseded []models.QueueDocument
	eligible   []models.QueueDocument
	inFlight   []models.QueueDocument
	moduleDocs []models.QueueDocument
	statusHits int

	updateErr error
}

func newStubDocs() *stubDocs {
	return &stubDocs{
		byIdentity: make(map[string]*models.QueueDocument),
		byTypeID:   make(map[string]*models.QueueDocument),
		byID:       make(map[string]*models.QueueDocument),
		updates:    make(map[string][]repository.UpdateDocumentParams),
		selfChecks: make(map[string]int),
		leases:     make(map[string]time.Time),
	}
}

func (s *stubDocs) FindByIdentity(ctx context.Context, ident models.Identity) (*models.QueueDocument, error) {
	return s.byIdentity[identKey(ident)], nil
}

func (s *stubDocs) FindByTypeID(ctx context.Context, doctype models.DocType, typeID string) (*models.QueueDocument, error) {
	return s.byTypeID[string(doctype)+"|"+typeID], nil
}

func (s *stubDocs) GetByID(ctx context.Context, id string) (*models.QueueDocument, error) {
	if doc, ok := s.byID[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("not found")
}

func (s *stubDocs) Insert(ctx context.Context, doc *models.QueueDocument) error {
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(s.inserted)+1)
	}
	if doc.AddedAt.IsZero() {
		doc.AddedAt = time.Now().UTC()
	}
	s.inserted = append(s.inserted, doc)
	return nil
}

func (s *stubDocs) UpdateFields(ctx context.Context, id string, params repository.UpdateDocumentParams) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates[id] = append(s.updates[id], params)
	return nil
}

func (s *stubDocs) ListSuperseded(ctx context.Context, doc *models.QueueDocument) ([]models.QueueDocument, error) {
	return s.superseded, nil
}

func (s *stubDocs) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubDocs) Claim(ctx context.Context, id string, until time.Time) (bool, error) {
	if t, ok := s.leases[id]; ok && t.After(time.Now()) {
		return false, nil
	}
	s.leases[id] = until
	return true, nil
}

func (s *stubDocs) Release(ctx context.Context, id string) error {
	delete(s.leases, id)
	return nil
}

func (s *stubDocs) IncrementSelfChecks(ctx context.Context, id string) error {
	s.selfChecks[id]++
	return nil
}

func (s *stubDocs) CountInStatus(ctx context.Context, cmID, userID int64, status models.DocStatus) (int, error) {
	return s.statusHits, nil
}

func (s *stubDocs) ListEligibleForUpload(ctx context.Context, limit int) ([]models.QueueDocument, error) {
	return s.eligible, nil
}

func (s *stubDocs) ListInFlight(ctx context.Context, limit int) ([]models.QueueDocument, error) {
	return s.inFlight, nil
}

func (s *stubDocs) ListByModule(ctx context.Context, cmID int64, limit, offset int) ([]models.QueueDocument, error) {
	if offset >= len(s.moduleDocs) {
		return nil, nil
	}
	return s.moduleDocs[offset:], nil
}

func (s *stubDocs) lastStatus(id string) *models.DocStatus {
	updates := s.updates[id]
	for i := len(updates) - 1; i >= 0; i-- {
		if updates[i].Status != nil {
			return updates[i].Status
		}
	}
	return nil
}

type stubPolicies struct {
	policy *models.CourseModulePolicy
	err    error
}

func (s *stubPolicies) Get(ctx context.Context, courseID, cmID int64) (*models.CourseModulePolicy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.policy, nil
}

type stubAudit struct {
	records []RecordParams
}

func (s *stubAudit) Record(ctx context.Context, params RecordParams) {
	s.records = append(s.records, params)
}

func (s *stubAudit) actions() []models.ActionCode {
	codes := make([]models.ActionCode, len(s.records))
	for i, r := range s.records {
		codes[i] = r.Action
	}
	return codes
}

type stubIndex struct {
	retracted  []string
	admitted   []string
	retractErr error
	admitErr   error
}

func (s *stubIndex) Retract(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	if s.retractErr != nil {
		return s.retractErr
	}
	s.retracted = append(s.retracted, doc.ID)
	return nil
}

func (s *stubIndex) AdmitToIndex(ctx context.Context, doc *models.QueueDocument, initiator string) error {
	if s.admitErr != nil {
		return s.admitErr
	}
	s.admitted = append(s.admitted, doc.ID)
	doc.Status = models.StatusInIndex
	return nil
}

type stubResolver struct {
	content *models.ResolvedContent
	naming  *models.Naming
	err     error
}

func (s *stubResolver) ResolveContent(ctx context.Context, ref models.ContentRef) (*models.ResolvedContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.content == nil {
		return &models.ResolvedContent{}, nil
	}
	return s.content, nil
}

func (s *stubResolver) ResolveNaming(ctx context.Context, ref models.ContentRef) (*models.Naming, error) {
	if s.naming == nil {
		return &models.Naming{}, nil
	}
	return s.naming, nil
}

type stubResolvers struct {
	resolver *stubResolver
}

func (s *stubResolvers) For(doctype models.DocType) (repository.ContentResolver, error) {
	return s.resolver, nil
}

// stubClient scripts remote responses per operation.
type stubClient struct {
	uploadID  string
	uploadErr error
	attrsErr  error
	startErr  error

	pollResults []*verifier.StatusResult
	pollErr     error
	pollIdx     int

	reportResult *verifier.StatusResult
	reportErr    error

	indexErr error

	infoResults []*verifier.DocumentInfo
	infoErr     error
	infoIdx     int

	calls []string
}

func (s *stubClient) Upload(ctx context.Context, filename string, data []byte, attrs []verifier.Attribute) (string, error) {
	s.calls = append(s.calls, "upload")
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return s.uploadID, nil
}

func (s *stubClient) SetAttributes(ctx context.Context, externalID string, attrs []verifier.Attribute) error {
	s.calls = append(s.calls, "set_attributes")
	return s.attrsErr
}

func (s *stubClient) StartCheck(ctx context.Context, externalID string, excludedSections string) error {
	s.calls = append(s.calls, "start_check")
	return s.startErr
}

func (s *stubClient) PollStatus(ctx context.Context, externalID string) (*verifier.StatusResult, error) {
	s.calls = append(s.calls, "poll_status")
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	if s.pollIdx >= len(s.pollResults) {
		return &verifier.StatusResult{State: verifier.StateInProgress}, nil
	}
	result := s.pollResults[s.pollIdx]
	s.pollIdx++
	return result, nil
}

func (s *stubClient) FetchReport(ctx context.Context, externalID string) (*verifier.StatusResult, error) {
	s.calls = append(s.calls, "fetch_report")
	if s.reportErr != nil {
		return nil, s.reportErr
	}
	return s.reportResult, nil
}

func (s *stubClient) SetIndexFlag(ctx context.Context, externalID string, addToIndex bool) error {
	s.calls = append(s.calls, "set_index_flag")
	return s.indexErr
}

func (s *stubClient) GetDocumentInfo(ctx context.Context, externalID string) (*verifier.DocumentInfo, error) {
	s.calls = append(s.calls, "get_document_info")
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	if s.infoIdx >= len(s.infoResults) {
		return &verifier.DocumentInfo{StillIndexed: false}, nil
	}
	info := s.infoResults[s.infoIdx]
	s.infoIdx++
	return info, nil
}
