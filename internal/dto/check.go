package dto

import "github.com/noah-isme/sma-originality-api/internal/models"

// CheckRequest is the synchronous check-now payload from the host UI. For
// text answers ContentHex carries the hex-encoded normalized clear text; for
// files TypeID references the stored file.
type CheckRequest struct {
	DocType    models.DocType `json:"doctype" binding:"required"`
	TypeID     string         `json:"typeid" binding:"required"`
	ContentHex string         `json:"content,omitempty"`
}

// CheckResult is the render-ready outcome of a manual verification.
type CheckResult struct {
	DocID       string           `json:"doc_id"`
	Status      models.DocStatus `json:"status"`
	StatusLabel string           `json:"status_label"`
	Checking    bool             `json:"checking"`

	Plagiarism    *float64 `json:"plagiarism,omitempty"`
	LegalCitation *float64 `json:"legal_citation,omitempty"`
	SelfCitation  *float64 `json:"self_citation,omitempty"`
	Originality   *float64 `json:"originality,omitempty"`
	Suspicious    bool     `json:"suspicious"`
	ReportLink    string   `json:"report_link,omitempty"`

	Error string `json:"error,omitempty"`
}

// DocumentDetail bundles a queue row with its audit trail.
type DocumentDetail struct {
	Document  models.QueueDocument    `json:"document"`
	ActionLog []models.ActionLogEntry `json:"action_log"`
}

// QueueListResponse is the admin module queue listing.
type QueueListResponse struct {
	Documents []models.QueueDocument `json:"documents"`
}

// SweepResult summarizes one manual sweep trigger.
type SweepResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// ExportRequest asks for a module summary export.
type ExportRequest struct {
	CmID   int64  `json:"cmid" binding:"required"`
	Format string `json:"format" binding:"required,oneof=csv pdf"`
}

// ExportJobResponse is returned after scheduling an export.
type ExportJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
