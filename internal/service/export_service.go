package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-originality-api/internal/dto"
	"github.com/noah-isme/sma-originality-api/internal/models"
	appErrors "github.com/noah-isme/sma-originality-api/pkg/errors"
	"github.com/noah-isme/sma-originality-api/pkg/export"
	"github.com/noah-isme/sma-originality-api/pkg/jobs"
	"github.com/noah-isme/sma-originality-api/pkg/storage"
)

type moduleDocumentLister interface {
	ListByModule(ctx context.Context, cmID int64, limit, offset int) ([]models.QueueDocument, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	PageSize  int
	Workers   int
	Retries   int
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       string
	ExpiresAt    time.Time
}

// ExportJob tracks one scheduled export through its lifetime. Jobs live in
// memory only; a restart loses pending exports, which callers simply
// reschedule.
type ExportJob struct {
	ID        string
	CmID      int64
	Format    string
	Status    string
	Result    *ExportResult
	Error     string
	CreatedAt time.Time
}

const (
	exportStatusQueued     = "queued"
	exportStatusProcessing = "processing"
	exportStatusFinished   = "finished"
	exportStatusFailed     = "failed"
)

// ExportService renders module verification summaries to CSV or PDF and
// serves them through signed download links. Generation runs on a background
// worker queue.
type ExportService struct {
	docs    moduleDocumentLister
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	queue   *jobs.Queue
	logger  *zap.Logger
	cfg     ExportConfig

	mu     sync.RWMutex
	active map[string]*ExportJob
}

// NewExportService constructs an ExportService with its own worker queue.
func NewExportService(docs moduleDocumentLister, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	s := &ExportService{
		docs:    docs,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		active:  make(map[string]*ExportJob),
	}
	s.queue = jobs.NewQueue("exports", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		Logger:     logger,
	})
	return s
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// Schedule queues a module summary export and returns its job handle.
func (s *ExportService) Schedule(ctx context.Context, req dto.ExportRequest) (*dto.ExportJobResponse, error) {
	job := &ExportJob{
		ID:        uuid.NewString(),
		CmID:      req.CmID,
		Format:    strings.ToLower(req.Format),
		Status:    exportStatusQueued,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.active[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "module_summary", Payload: job}); err != nil {
		s.mu.Lock()
		delete(s.active, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export")
	}

	return &dto.ExportJobResponse{ID: job.ID, Status: job.Status}, nil
}

// Job returns the current state of a scheduled export.
func (s *ExportService) Job(id string) (*ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.active[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	copied := *job
	return &copied, nil
}

func (s *ExportService) handleJob(ctx context.Context, raw jobs.Job) error {
	job, ok := raw.Payload.(*ExportJob)
	if !ok {
		return fmt.Errorf("unexpected export payload %T", raw.Payload)
	}

	s.setStatus(job.ID, exportStatusProcessing, nil, "")

	result, err := s.Generate(ctx, job.CmID, job.Format)
	if err != nil {
		s.setStatus(job.ID, exportStatusFailed, nil, err.Error())
		return err
	}
	s.setStatus(job.ID, exportStatusFinished, result, "")
	return nil
}

func (s *ExportService) setStatus(id, status string, result *ExportResult, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.active[id]; ok {
		job.Status = status
		job.Result = result
		job.Error = errText
	}
}

// Generate builds the module dataset and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, cmID int64, format string) (*ExportResult, error) {
	dataset, title, err := s.buildDataset(ctx, cmID)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case "csv":
		payload, err = s.csv.Render(dataset)
	case "pdf":
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("module_%d_%s.%s", cmID, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	// The token delimiter is a dot, so the first segment must never carry one;
	// a fresh UUID identifies the download, the filename travels in relPath.
	token, expiresAt, err := s.signer.Generate(uuid.NewString(), relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, cmID int64) (export.Dataset, string, error) {
	headers := []string{"User ID", "Answer ID", "Type", "Status", "Plagiarism (%)", "Legal Citation (%)", "Self Citation (%)", "Originality (%)", "Suspicious", "Added At"}
	rows := make([]map[string]string, 0, s.cfg.PageSize)

	for offset := 0; ; offset += s.cfg.PageSize {
		page, err := s.docs.ListByModule(ctx, cmID, s.cfg.PageSize, offset)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for i := range page {
			rows = append(rows, summaryRow(&page[i]))
		}
		if len(page) < s.cfg.PageSize {
			break
		}
	}

	title := fmt.Sprintf("Originality Summary, Module %d", cmID)
	return export.Dataset{Headers: headers, Rows: rows}, title, nil
}

func summaryRow(doc *models.QueueDocument) map[string]string {
	row := map[string]string{
		"User ID":        fmt.Sprintf("%d", doc.UserID),
		"Answer ID":      fmt.Sprintf("%d", doc.AnswerID),
		"Type":           string(doc.DocType),
		"Status":         doc.Status.String(),
		"Plagiarism (%)": formatScore(doc.Plagiarism),
		"Legal Citation (%)": formatScore(doc.LegalCitation),
		"Self Citation (%)":  formatScore(doc.SelfCitation),
		"Originality (%)":    formatScore(doc.Originality()),
		"Suspicious":         fmt.Sprintf("%t", doc.Suspicious),
		"Added At":           doc.AddedAt.UTC().Format(time.RFC3339),
	}
	return row
}

func formatScore(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}
