package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

type stubActionLogStore struct {
	entries []*models.ActionLogEntry
	cutoff  time.Time
	purged  int64
	err     error
}

func (s *stubActionLogStore) Insert(ctx context.Context, entry *models.ActionLogEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubActionLogStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.purged, s.err
}

func TestRecordSnapshotsPolicy(t *testing.T) {
	store := &stubActionLogStore{}
	policies := &stubPolicies{policy: &models.CourseModulePolicy{
		Mode:          models.ModeManual,
		StudentLimit:  3,
		ActionLogging: true,
	}}
	svc := NewActionLogService(store, policies, zap.NewNop())

	externalID := "remote-1"
	doc := &models.QueueDocument{
		ID:         "doc-1",
		CourseID:   11,
		CmID:       42,
		UserID:     7,
		AnswerID:   100,
		Status:     models.StatusChecked,
		ExternalID: &externalID,
	}
	svc.Record(context.Background(), RecordParams{
		Doc:        doc,
		Action:     models.ActionVerificationEnd,
		Initiator:  "user:7",
		ReportLink: "https://r/read",
	})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, models.ActionVerificationEnd, entry.Action)
	assert.Equal(t, "user:7", entry.Initiator)
	require.NotNil(t, entry.ReportLink)
	assert.Equal(t, "https://r/read", *entry.ReportLink)
	assert.Contains(t, entry.PolicySnapshot, `"student_limit":3`)
}

func TestRecordSkippedWhenLoggingDisabled(t *testing.T) {
	store := &stubActionLogStore{}
	policies := &stubPolicies{policy: &models.CourseModulePolicy{Mode: models.ModeManual}}
	svc := NewActionLogService(store, policies, zap.NewNop())

	svc.Record(context.Background(), RecordParams{
		Doc:    &models.QueueDocument{ID: "doc-1"},
		Action: models.ActionEnqueue,
	})
	assert.Empty(t, store.entries)
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	store := &stubActionLogStore{err: assert.AnError}
	policies := &stubPolicies{policy: &models.CourseModulePolicy{Mode: models.ModeManual, ActionLogging: true}}
	svc := NewActionLogService(store, policies, zap.NewNop())

	// Must not panic or propagate; the transition itself owns the outcome.
	svc.Record(context.Background(), RecordParams{
		Doc:    &models.QueueDocument{ID: "doc-1"},
		Action: models.ActionError,
	})
}

func TestPurgeOlderThanUsesRetentionWindow(t *testing.T) {
	store := &stubActionLogStore{purged: 17}
	svc := NewActionLogService(store, &stubPolicies{}, zap.NewNop())

	purged, err := svc.PurgeOlderThan(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, int64(17), purged)

	expected := time.Now().UTC().AddDate(0, -6, 0)
	assert.WithinDuration(t, expected, store.cutoff, time.Minute)
}

func TestPurgeOlderThanDisabledRetention(t *testing.T) {
	store := &stubActionLogStore{}
	svc := NewActionLogService(store, &stubPolicies{}, zap.NewNop())

	purged, err := svc.PurgeOlderThan(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.True(t, store.cutoff.IsZero())
}
