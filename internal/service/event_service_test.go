package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

type stubAdmitter struct {
	mu     sync.Mutex
	events []*models.SubmissionEvent
	err    error
}

func (s *stubAdmitter) AdmitSubmission(ctx context.Context, event *models.SubmissionEvent) (*models.QueueDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, event)
	return &models.QueueDocument{ID: "doc-1"}, nil
}

func (s *stubAdmitter) seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestSubmitQueuesValidEvent(t *testing.T) {
	admitter := &stubAdmitter{}
	svc := NewEventService(admitter, nil, zap.NewNop(), EventConfig{Workers: 1, BufferSize: 4})
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Submit(context.Background(), &models.SubmissionEvent{
		DocType:  models.DocTypeAssign,
		CourseID: 11,
		CmID:     42,
		UserID:   7,
		AnswerID: 100,
		Content:  "some answer text",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return admitter.seen() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(42), admitter.events[0].CmID)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	svc := NewEventService(&stubAdmitter{}, nil, zap.NewNop(), EventConfig{})

	err := svc.Submit(context.Background(), &models.SubmissionEvent{DocType: models.DocTypeAssign})
	require.Error(t, err)
}

func TestSubmitRejectsUnknownDocType(t *testing.T) {
	svc := NewEventService(&stubAdmitter{}, nil, zap.NewNop(), EventConfig{})

	err := svc.Submit(context.Background(), &models.SubmissionEvent{
		DocType:  "wiki",
		CourseID: 11,
		CmID:     42,
		UserID:   7,
		AnswerID: 100,
	})
	require.Error(t, err)
}
