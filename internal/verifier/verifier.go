package verifier

import (
	"context"
	"fmt"
	"time"
)

// CheckState is the remote check lifecycle reported by status polls.
type CheckState string

const (
	StateInProgress CheckState = "in_progress"
	StateReady      CheckState = "ready"
	StateFailed     CheckState = "failed"
	StateNone       CheckState = "none"
)

// Scores are the percentages the remote service reports for a finished check.
type Scores struct {
	Plagiarism    float64 `json:"plagiarism"`
	LegalCitation float64 `json:"legal_citation"`
	SelfCitation  float64 `json:"self_citation"`
	Suspicious    bool    `json:"suspicious"`
}

// ReportLinks are the viewer URLs for a finished check.
type ReportLinks struct {
	Edit     string `json:"edit"`
	ReadOnly string `json:"readonly"`
	Short    string `json:"short"`
}

// StatusResult is the normalized shape of both PollStatus and FetchReport.
type StatusResult struct {
	State         CheckState   `json:"state"`
	Scores        *Scores      `json:"scores,omitempty"`
	Links         *ReportLinks `json:"links,omitempty"`
	WaitHint      int          `json:"wait_hint,omitempty"`
	FailureDetail string       `json:"failure_detail,omitempty"`
}

// DocumentInfo is the remote-side view of a document's index membership.
type DocumentInfo struct {
	StillIndexed bool `json:"in_index"`
}

// Attribute is one name/value pair passed through verbatim on upload and on
// later attribute updates. Order matters to the remote service.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client abstracts the remote verification service.
type Client interface {
	Upload(ctx context.Context, filename string, data []byte, attrs []Attribute) (externalID string, err error)
	SetAttributes(ctx context.Context, externalID string, attrs []Attribute) error
	StartCheck(ctx context.Context, externalID string, excludedSections string) error
	PollStatus(ctx context.Context, externalID string) (*StatusResult, error)
	FetchReport(ctx context.Context, externalID string) (*StatusResult, error)
	SetIndexFlag(ctx context.Context, externalID string, addToIndex bool) error
	GetDocumentInfo(ctx context.Context, externalID string) (*DocumentInfo, error)
}

// ErrorKind classifies remote failures so callers can map them onto queue
// statuses: transport failures are retryable, rejections are terminal.
type ErrorKind int

const (
	// KindTransport covers connectivity failures and remote 5xx faults.
	KindTransport ErrorKind = iota
	// KindRejected means the service refused the document itself.
	KindRejected
	// KindApplication covers everything else the service answered with.
	KindApplication
)

// Error is a classified remote-call failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verifier %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("verifier %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransport reports whether err is a retryable connectivity failure.
func IsTransport(err error) bool {
	return kindOf(err) == KindTransport
}

// IsRejected reports whether the remote refused the document content.
func IsRejected(err error) bool {
	return kindOf(err) == KindRejected
}

func kindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindApplication
}

// Config holds the HTTP client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}
