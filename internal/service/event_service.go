package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/models"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/jobs"
)

type submissionAdmitter interface {
	AdmitSubmission(ctx context.Context, event *models.SubmissionEvent) (*models.QueueDocument, error)
}

// EventConfig tunes the intake worker pool.
type EventConfig struct {
	Workers    int
	BufferSize int
	Retries    int
}

// EventService takes submission events off the request path. The host fires
// events on every save, so admission runs on a worker pool instead of
// blocking the webhook response.
type EventService struct {
	admission submissionAdmitter
	validator *validator.Validate
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewEventService constructs the intake service with its own worker queue.
func NewEventService(admission submissionAdmitter, validate *validator.Validate, logger *zap.Logger, cfg EventConfig) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	s := &EventService{admission: admission, validator: validate, logger: logger}
	s.queue = jobs.NewQueue("submission-events", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the intake workers.
func (s *EventService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the intake workers.
func (s *EventService) Stop() {
	s.queue.Stop()
}

// Submit validates and queues one submission event.
func (s *EventService) Submit(ctx context.Context, event *models.SubmissionEvent) error {
	if err := s.validator.Struct(event); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission event")
	}
	if !event.DocType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported doctype %q", event.DocType))
	}

	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: string(event.DocType), Payload: event}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue submission event")
	}
	return nil
}

func (s *EventService) handleJob(ctx context.Context, raw jobs.Job) error {
	event, ok := raw.Payload.(*models.SubmissionEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", raw.Payload)
	}

	doc, err := s.admission.AdmitSubmission(ctx, event)
	if err != nil {
		return err
	}
	if doc == nil {
		s.logger.Debug("submission skipped by module policy",
			zap.String("doctype", string(event.DocType)),
			zap.Int64("cmid", event.CmID))
	}
	return nil
}
