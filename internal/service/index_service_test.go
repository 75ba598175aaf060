package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
	"github.com/noah-isme/sma-originality-api/internal/verifier"
)

type indexFixture struct {
	docs   *stubDocs
	client *stubClient
	audit  *stubAudit
	svc    *IndexService
}

func newIndexFixture() *indexFixture {
	docs := newStubDocs()
	client := &stubClient{}
	audit := &stubAudit{}
	svc := NewIndexService(docs, client, audit, NewMetricsService(), zap.NewNop(), IndexServiceConfig{
		PollInterval: time.Millisecond,
		PollBudget:   50 * time.Millisecond,
	})
	return &indexFixture{docs: docs, client: client, audit: audit, svc: svc}
}

func indexedDoc() *models.QueueDocument {
	externalID := "remote-1"
	return &models.QueueDocument{
		ID:         "doc-1",
		DocType:    models.DocTypeAssign,
		CmID:       42,
		UserID:     7,
		AnswerID:   100,
		Status:     models.StatusInIndex,
		ExternalID: &externalID,
	}
}

func TestRetractWithoutExternalIDIsNoop(t *testing.T) {
	f := newIndexFixture()
	doc := indexedDoc()
	doc.ExternalID = nil

	require.NoError(t, f.svc.Retract(context.Background(), doc, "user:7"))
	assert.Empty(t, f.client.calls)
	assert.Empty(t, f.audit.records)
}

func TestRetractWaitsForConfirmation(t *testing.T) {
	f := newIndexFixture()
	f.client.infoResults = []*verifier.DocumentInfo{
		{StillIndexed: true},
		{StillIndexed: true},
		{StillIndexed: false},
	}
	doc := indexedDoc()

	require.NoError(t, f.svc.Retract(context.Background(), doc, "user:7"))

	assert.Equal(t, models.StatusChecked, doc.Status)
	assert.Equal(t, []string{"set_index_flag", "get_document_info", "get_document_info", "get_document_info"}, f.client.calls)
	assert.Equal(t, []models.ActionCode{models.ActionIndexRemoveStart, models.ActionIndexRemoveEnd}, f.audit.actions())
}

func TestRetractBudgetExhausted(t *testing.T) {
	f := newIndexFixture()
	for i := 0; i < 200; i++ {
		f.client.infoResults = append(f.client.infoResults, &verifier.DocumentInfo{StillIndexed: true})
	}
	doc := indexedDoc()

	err := f.svc.Retract(context.Background(), doc, "user:7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not confirmed")
	assert.Equal(t, models.StatusErrorIndex, doc.Status)
	assert.Contains(t, f.audit.actions(), models.ActionError)
}

func TestRetractRemoteFlagFailure(t *testing.T) {
	f := newIndexFixture()
	f.client.indexErr = &verifier.Error{Kind: verifier.KindTransport, Op: "index", Message: "unreachable"}
	doc := indexedDoc()

	err := f.svc.Retract(context.Background(), doc, "user:7")
	require.Error(t, err)
	assert.Equal(t, models.StatusErrorIndex, doc.Status)
	require.NotNil(t, doc.ErrorText)
	assert.Contains(t, *doc.ErrorText, "unreachable")
}

func TestRetractFailureMarksPendingRemoval(t *testing.T) {
	f := newIndexFixture()
	f.client.indexErr = &verifier.Error{Kind: verifier.KindTransport, Op: "index", Message: "unreachable"}
	doc := indexedDoc()

	err := f.svc.Retract(context.Background(), doc, "user:7")
	require.Error(t, err)

	assert.True(t, doc.PendingRemoval)
	updates := f.docs.updates["doc-1"]
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	require.NotNil(t, last.PendingRemoval)
	assert.True(t, *last.PendingRemoval)
}

func TestRetractSuccessClearsPendingRemoval(t *testing.T) {
	f := newIndexFixture()
	doc := indexedDoc()
	doc.Status = models.StatusErrorIndex
	doc.PendingRemoval = true

	require.NoError(t, f.svc.Retract(context.Background(), doc, "sweep:status"))

	assert.Equal(t, models.StatusChecked, doc.Status)
	assert.False(t, doc.PendingRemoval)
}

func TestAdmitFailureLeavesPendingRemovalUnset(t *testing.T) {
	f := newIndexFixture()
	f.client.indexErr = &verifier.Error{Kind: verifier.KindTransport, Op: "index", Message: "unreachable"}
	doc := indexedDoc()
	doc.Status = models.StatusChecked

	err := f.svc.AdmitToIndex(context.Background(), doc, "sweep:status")
	require.Error(t, err)

	assert.Equal(t, models.StatusErrorIndex, doc.Status)
	assert.False(t, doc.PendingRemoval)
}

func TestRetractConfirmationLookupFailure(t *testing.T) {
	f := newIndexFixture()
	f.client.infoErr = &verifier.Error{Kind: verifier.KindTransport, Op: "info", Message: "timeout"}
	doc := indexedDoc()

	err := f.svc.Retract(context.Background(), doc, "user:7")
	require.Error(t, err)
	assert.Equal(t, models.StatusErrorIndex, doc.Status)
}

func TestAdmitToIndexFlagsDocument(t *testing.T) {
	f := newIndexFixture()
	doc := indexedDoc()
	doc.Status = models.StatusChecked

	require.NoError(t, f.svc.AdmitToIndex(context.Background(), doc, "sweep:status"))

	assert.Equal(t, models.StatusInIndex, doc.Status)
	assert.Equal(t, []string{"set_index_flag"}, f.client.calls)
	assert.Equal(t, []models.ActionCode{models.ActionIndexAdd}, f.audit.actions())
}

func TestAdmitToIndexDeferredWhileSiblingInFlight(t *testing.T) {
	f := newIndexFixture()
	f.docs.statusHits = 1
	doc := indexedDoc()
	doc.Status = models.StatusChecked

	require.NoError(t, f.svc.AdmitToIndex(context.Background(), doc, "sweep:status"))

	assert.Equal(t, models.StatusChecked, doc.Status)
	assert.Empty(t, f.client.calls)
}

func TestAdmitToIndexRemoteFailure(t *testing.T) {
	f := newIndexFixture()
	f.client.indexErr = &verifier.Error{Kind: verifier.KindTransport, Op: "index", Message: "unreachable"}
	doc := indexedDoc()
	doc.Status = models.StatusChecked

	err := f.svc.AdmitToIndex(context.Background(), doc, "sweep:status")
	require.Error(t, err)
	assert.Equal(t, models.StatusErrorIndex, doc.Status)
}
