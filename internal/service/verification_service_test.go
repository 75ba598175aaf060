package service

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
	"github.com/noah-isme/sma-originality-api/pkg/config"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/fingerprint"
)

type verificationFixture struct {
	docs     *stubDocs
	policies *stubPolicies
	resolver *stubResolver
	client   *stubClient
	index    *stubIndex
	audit    *stubAudit
	svc      *VerificationService
}

func newVerificationFixture() *verificationFixture {
	docs := newStubDocs()
	policies := &stubPolicies{policy: &models.CourseModulePolicy{
		Mode:          models.ModeManual,
		CheckText:     true,
		CheckFile:     true,
		ActionLogging: true,
	}}
	resolver := &stubResolver{content: &models.ResolvedContent{Text: "plenty of words to verify here"}}
	client := &stubClient{uploadID: "remote-1"}
	index := &stubIndex{}
	audit := &stubAudit{}
	svc := NewVerificationService(docs, policies, &stubResolvers{resolver: resolver}, client, index, audit, NewMetricsService(), zap.NewNop(), VerificationConfig{
		ManualPollDelay: time.Millisecond,
	})
	return &verificationFixture{docs: docs, policies: policies, resolver: resolver, client: client, index: index, audit: audit, svc: svc}
}

func (f *verificationFixture) seed(doc *models.QueueDocument) *models.QueueDocument {
	f.docs.byTypeID[string(doc.DocType)+"|"+doc.TypeID] = doc
	return doc
}

func waitingDoc() *models.QueueDocument {
	return &models.QueueDocument{
		ID:       "doc-1",
		DocType:  models.DocTypeAssign,
		TypeID:   "digest-1",
		CourseID: 11,
		CmID:     42,
		UserID:   7,
		AnswerID: 100,
		Status:   models.StatusWaitUpload,
	}
}

func author() *models.JWTClaims {
	return &models.JWTClaims{UserID: 7}
}

func TestCheckNowUnknownDocument(t *testing.T) {
	f := newVerificationFixture()

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "missing"})
	require.ErrorIs(t, err, appErrors.ErrNotInQueue)
}

func TestCheckNowDisabledModule(t *testing.T) {
	f := newVerificationFixture()
	f.policies.policy.Mode = models.ModeDisabled
	f.seed(waitingDoc())

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.ErrorIs(t, err, appErrors.ErrCheckingDisabled)
}

func TestCheckNowSelfCheckLimit(t *testing.T) {
	f := newVerificationFixture()
	f.policies.policy.StudentLimit = 2
	doc := waitingDoc()
	doc.StudentChecks = 2
	f.seed(doc)

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.ErrorIs(t, err, appErrors.ErrCheckLimit)
	assert.Empty(t, f.client.calls)
}

func TestCheckNowCheckerBypassesLimit(t *testing.T) {
	f := newVerificationFixture()
	f.policies.policy.StudentLimit = 1
	doc := waitingDoc()
	doc.Status = models.StatusErrorCheck
	doc.StudentChecks = 5
	f.seed(doc)

	claims := author()
	claims.Checker = true
	result, err := f.svc.CheckNow(context.Background(), claims, dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusErrorCheck, result.Status)
	assert.Empty(t, f.docs.selfChecks)
}

func TestCheckNowFullPipeline(t *testing.T) {
	f := newVerificationFixture()
	f.policies.policy.AddToIndex = true
	f.policies.policy.StudentLimit = 3
	f.client.pollResults = []*verifier.StatusResult{{
		State:  verifier.StateReady,
		Scores: &verifier.Scores{Plagiarism: 12.5, LegalCitation: 5, SelfCitation: 2.5},
		Links:  &verifier.ReportLinks{Edit: "https://r/edit", ReadOnly: "https://r/read", Short: "https://r/s"},
	}}
	doc := f.seed(waitingDoc())

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInIndex, doc.Status)
	assert.Equal(t, []string{"upload", "start_check", "poll_status"}, f.client.calls)
	assert.Equal(t, []string{"doc-1"}, f.index.admitted)
	assert.Equal(t, 1, f.docs.selfChecks["doc-1"])

	require.NotNil(t, result.Originality)
	assert.InDelta(t, 80.0, *result.Originality, 0.001)
	assert.Equal(t, "https://r/read", result.ReportLink)
	assert.Empty(t, result.Error)

	assert.Equal(t, []models.ActionCode{
		models.ActionDocProcessingStart,
		models.ActionUploadStart,
		models.ActionUploadEnd,
		models.ActionCheckStart,
		models.ActionVerificationEnd,
		models.ActionDocProcessingEnd,
	}, f.audit.actions())
}

func TestCheckNowCountsSelfCheckWithoutLimit(t *testing.T) {
	f := newVerificationFixture()
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateReady}}
	f.seed(waitingDoc())

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	// The counter tracks author-initiated checks even when no limit is set.
	assert.Equal(t, 1, f.docs.selfChecks["doc-1"])
}

func TestCheckNowRefreshesAttributesOnReusedUpload(t *testing.T) {
	f := newVerificationFixture()
	f.svc = NewVerificationService(f.docs, f.policies, &stubResolvers{resolver: f.resolver}, f.client, f.index, f.audit, NewMetricsService(), zap.NewNop(), VerificationConfig{
		ManualPollDelay: time.Millisecond,
		Attributes:      config.AttributesConfig{SendAuthorID: true},
	})
	externalID := "remote-1"
	doc := waitingDoc()
	doc.Status = models.StatusUploaded
	doc.ExternalID = &externalID
	f.seed(doc)
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateReady}}

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"set_attributes", "start_check", "poll_status"}, f.client.calls)
	assert.Contains(t, f.audit.actions(), models.ActionAttributeLoadStart)
	assert.Contains(t, f.audit.actions(), models.ActionAttributeLoadEnd)
}

func TestCheckNowAttributeRefreshFailureDoesNotBlockCheck(t *testing.T) {
	f := newVerificationFixture()
	f.svc = NewVerificationService(f.docs, f.policies, &stubResolvers{resolver: f.resolver}, f.client, f.index, f.audit, NewMetricsService(), zap.NewNop(), VerificationConfig{
		ManualPollDelay: time.Millisecond,
		Attributes:      config.AttributesConfig{SendAuthorID: true},
	})
	f.client.attrsErr = &verifier.Error{Kind: verifier.KindTransport, Op: "set_attributes", Message: "unreachable"}
	externalID := "remote-1"
	doc := waitingDoc()
	doc.Status = models.StatusUploaded
	doc.ExternalID = &externalID
	f.seed(doc)
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateReady}}

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"set_attributes", "start_check", "poll_status"}, f.client.calls)
	assert.Equal(t, models.StatusChecked, doc.Status)
}

func TestCheckNowTransportFailureParksRow(t *testing.T) {
	f := newVerificationFixture()
	f.client.uploadErr = &verifier.Error{Kind: verifier.KindTransport, Op: "upload", Message: "connection refused"}
	doc := f.seed(waitingDoc())

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusErrorUploading, doc.Status)
	assert.Equal(t, models.StatusErrorUploading, result.Status)
	assert.Contains(t, result.Error, "connection refused")
}

func TestCheckNowRejectedUploadIsTerminal(t *testing.T) {
	f := newVerificationFixture()
	f.client.uploadErr = &verifier.Error{Kind: verifier.KindRejected, Op: "upload", Message: "unsupported format"}
	doc := f.seed(waitingDoc())

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInvalidFileType, doc.Status)
	assert.Equal(t, models.StatusInvalidFileType, result.Status)
}

func TestCheckNowMissingContentResetsRow(t *testing.T) {
	f := newVerificationFixture()
	f.resolver.content = &models.ResolvedContent{}
	doc := f.seed(waitingDoc())

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusNotFound, doc.Status)
	assert.Equal(t, models.StatusNotFound, result.Status)
	assert.Empty(t, f.client.calls)
}

func TestCheckNowRestartsLostCheck(t *testing.T) {
	f := newVerificationFixture()
	externalID := "remote-1"
	doc := waitingDoc()
	doc.Status = models.StatusChecking
	doc.ExternalID = &externalID
	f.seed(doc)
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateNone}}

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"poll_status", "start_check"}, f.client.calls)
	assert.Equal(t, models.StatusChecking, result.Status)
	assert.True(t, result.Checking)
}

func TestCheckNowRemoteFailureIsFinal(t *testing.T) {
	f := newVerificationFixture()
	externalID := "remote-1"
	doc := waitingDoc()
	doc.Status = models.StatusChecking
	doc.ExternalID = &externalID
	f.seed(doc)
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateFailed, FailureDetail: "parse error"}}

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusErrorCheck, doc.Status)
	assert.Contains(t, result.Error, "parse error")
}

func TestCheckNowRefreshesReportLinks(t *testing.T) {
	f := newVerificationFixture()
	externalID := "remote-1"
	stale := "https://r/stale"
	doc := waitingDoc()
	doc.Status = models.StatusChecked
	doc.ExternalID = &externalID
	doc.ReportRead = &stale
	f.seed(doc)
	f.client.reportResult = &verifier.StatusResult{
		State: verifier.StateReady,
		Links: &verifier.ReportLinks{Edit: "https://r/edit2", ReadOnly: "https://r/read2", Short: "https://r/s2"},
	}

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch_report"}, f.client.calls)
	assert.Equal(t, "https://r/read2", result.ReportLink)
	assert.Contains(t, f.audit.actions(), models.ActionReportRefresh)
}

func TestCheckNowReportFailureParksAndRecovers(t *testing.T) {
	f := newVerificationFixture()
	externalID := "remote-1"
	doc := waitingDoc()
	doc.Status = models.StatusChecked
	doc.ExternalID = &externalID
	f.seed(doc)
	f.client.reportErr = &verifier.Error{Kind: verifier.KindTransport, Op: "report", Message: "timeout"}

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusErrorGetReport, result.Status)

	// The next manual view retries the fetch and restores the checked state.
	f.client.reportErr = nil
	f.client.reportResult = &verifier.StatusResult{
		State: verifier.StateReady,
		Links: &verifier.ReportLinks{Edit: "e", ReadOnly: "r", Short: "s"},
	}
	result, err = f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusChecked, result.Status)
	assert.Equal(t, "r", result.ReportLink)
}

func TestCheckNowCheckerGetsEditableReport(t *testing.T) {
	f := newVerificationFixture()
	edit, read := "https://r/edit", "https://r/read"
	doc := waitingDoc()
	doc.Status = models.StatusErrorCheck
	doc.ReportEdit = &edit
	doc.ReportRead = &read
	f.seed(doc)

	claims := author()
	claims.Checker = true
	result, err := f.svc.CheckNow(context.Background(), claims, dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.Equal(t, edit, result.ReportLink)
}

func TestCheckNowMigratesLegacyFingerprint(t *testing.T) {
	f := newVerificationFixture()
	raw := "<p>alpha beta</p> gamma"
	doc := waitingDoc()
	doc.Status = models.StatusErrorCheck
	doc.TypeID = fingerprint.LegacyHash(raw)
	f.seed(doc)

	req := dto.CheckRequest{
		DocType:    models.DocTypeAssign,
		TypeID:     "stale-digest",
		ContentHex: hex.EncodeToString([]byte(raw)),
	}
	result, err := f.svc.CheckNow(context.Background(), author(), req)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, fingerprint.Hash(raw), doc.TypeID)
	updates := f.docs.updates["doc-1"]
	require.Len(t, updates, 1)
	require.NotNil(t, updates[0].TypeID)
	assert.Equal(t, fingerprint.Hash(raw), *updates[0].TypeID)
}

func TestCheckNowSkipsLeasedRow(t *testing.T) {
	f := newVerificationFixture()
	doc := f.seed(waitingDoc())
	f.docs.leases[doc.ID] = time.Now().Add(time.Minute)

	result, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusWaitUpload, result.Status)
	assert.Empty(t, f.client.calls)
}

func TestCheckNowReleasesLeaseAfterProcessing(t *testing.T) {
	f := newVerificationFixture()
	f.client.pollResults = []*verifier.StatusResult{{State: verifier.StateReady}}
	doc := f.seed(waitingDoc())

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.NotContains(t, f.docs.leases, doc.ID)
}

func TestCheckNowRetractsIndexedSiblings(t *testing.T) {
	f := newVerificationFixture()
	doc := waitingDoc()
	doc.Status = models.StatusErrorCheck
	f.seed(doc)
	f.docs.superseded = []models.QueueDocument{{ID: "doc-old", Status: models.StatusInIndex}}

	_, err := f.svc.CheckNow(context.Background(), author(), dto.CheckRequest{DocType: models.DocTypeAssign, TypeID: "digest-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-old"}, f.index.retracted)
	assert.Equal(t, []string{"doc-old"}, f.docs.deleted)
}
