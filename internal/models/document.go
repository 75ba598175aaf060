package models

import "time"

// DocType identifies which host module a submission came from.
type DocType string

const (
	DocTypeFile     DocType = "file"
	DocTypeForum    DocType = "forum"
	DocTypeAssign   DocType = "assign"
	DocTypeWorkshop DocType = "workshop"
	DocTypeQuiz     DocType = "quiz"
)

// Valid reports whether the doc type is one of the supported host modules.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeFile, DocTypeForum, DocTypeAssign, DocTypeWorkshop, DocTypeQuiz:
		return true
	}
	return false
}

// DocStatus is the queue lifecycle state. Positive values are the forward
// path, negative values are terminal rejections or retryable failures.
type DocStatus int

const (
	StatusNotFound   DocStatus = 0
	StatusWaitBlock  DocStatus = 1
	StatusWaitUpload DocStatus = 2
	StatusUploaded   DocStatus = 3
	StatusChecked    DocStatus = 4
	StatusInIndex    DocStatus = 5
	StatusUploading  DocStatus = 6
	StatusChecking   DocStatus = 7

	StatusLessWords        DocStatus = -1
	StatusInvalidFileType  DocStatus = -2
	StatusNoRightCheckedBy DocStatus = -3
	StatusErrorCheck       DocStatus = -4

	StatusErrorUploading DocStatus = -101
	StatusErrorChecking  DocStatus = -102
	StatusErrorGetStatus DocStatus = -103
	StatusErrorGetReport DocStatus = -104
	StatusErrorIndex     DocStatus = -105
)

// Retryable reports whether the next sweep pass may pick the row up again.
func (s DocStatus) Retryable() bool {
	switch s {
	case StatusErrorUploading, StatusErrorChecking, StatusErrorGetStatus, StatusErrorIndex:
		return true
	}
	return false
}

// Terminal reports whether the status is a final admission rejection that the
// sweeps never revisit.
func (s DocStatus) Terminal() bool {
	switch s {
	case StatusLessWords, StatusInvalidFileType, StatusNoRightCheckedBy:
		return true
	}
	return false
}

// String returns a short machine-friendly label for rendering and logging.
func (s DocStatus) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusWaitBlock:
		return "wait_block"
	case StatusWaitUpload:
		return "wait_upload"
	case StatusUploaded:
		return "uploaded"
	case StatusChecked:
		return "checked"
	case StatusInIndex:
		return "in_index"
	case StatusUploading:
		return "uploading"
	case StatusChecking:
		return "checking"
	case StatusLessWords:
		return "less_words"
	case StatusInvalidFileType:
		return "invalid_file_type"
	case StatusNoRightCheckedBy:
		return "author_exempt"
	case StatusErrorCheck:
		return "error_check"
	case StatusErrorUploading:
		return "error_uploading"
	case StatusErrorChecking:
		return "error_checking"
	case StatusErrorGetStatus:
		return "error_get_status"
	case StatusErrorGetReport:
		return "error_get_report"
	case StatusErrorIndex:
		return "error_index"
	}
	return "unknown"
}

// QueueDocument is one trackable submission artifact moving through the
// verification lifecycle. TypeID is a storage file id for file submissions and
// a content fingerprint for text answers.
type QueueDocument struct {
	ID            string    `db:"id" json:"id"`
	DocType       DocType   `db:"doctype" json:"doctype"`
	TypeID        string    `db:"typeid" json:"typeid"`
	CourseID      int64     `db:"courseid" json:"courseid"`
	CmID          int64     `db:"cmid" json:"cmid"`
	UserID        int64     `db:"userid" json:"userid"`
	AnswerID      int64     `db:"answerid" json:"answerid"`
	Discussion    *int64    `db:"discussion" json:"discussion,omitempty"`
	Assignment    *int64    `db:"assignment" json:"assignment,omitempty"`
	AttemptNumber int       `db:"attemptnumber" json:"attemptnumber"`
	Status        DocStatus `db:"status" json:"status"`

	ExternalID    *string  `db:"externalid" json:"externalid,omitempty"`
	ReportEdit    *string  `db:"report_edit" json:"report_edit,omitempty"`
	ReportRead    *string  `db:"report_read" json:"report_read,omitempty"`
	ReportShort   *string  `db:"report_short" json:"report_short,omitempty"`
	Plagiarism    *float64 `db:"plagiarism" json:"plagiarism,omitempty"`
	LegalCitation *float64 `db:"legal_citation" json:"legal_citation,omitempty"`
	SelfCitation  *float64 `db:"self_citation" json:"self_citation,omitempty"`
	Suspicious    bool     `db:"suspicious" json:"suspicious"`
	StudentChecks int      `db:"stud_check" json:"stud_check"`
	ErrorText     *string  `db:"error" json:"error,omitempty"`

	// PendingRemoval marks an error_index row parked by a failed retraction,
	// so retries remove the document instead of re-adding it.
	PendingRemoval bool `db:"pending_removal" json:"pending_removal,omitempty"`

	AddedAt     time.Time  `db:"added_at" json:"added_at"`
	UploadStart *time.Time `db:"upload_start" json:"upload_start,omitempty"`
	UploadEnd   *time.Time `db:"upload_end" json:"upload_end,omitempty"`
	CheckStart  *time.Time `db:"check_start" json:"check_start,omitempty"`
	CheckEnd    *time.Time `db:"check_end" json:"check_end,omitempty"`
}

// Identity is the lookup tuple for a queue row.
type Identity struct {
	DocType    DocType
	TypeID     string
	UserID     int64
	AnswerID   int64
	Discussion *int64
	Assignment *int64
}

// Originality derives the originality percentage from the stored scores. The
// raw computation is preserved unclamped: overlapping percentages from the
// remote service can drive it negative, which callers surface as-is.
func (d *QueueDocument) Originality() *float64 {
	if d.Plagiarism == nil || d.LegalCitation == nil || d.SelfCitation == nil {
		return nil
	}
	v := 100 - *d.Plagiarism - *d.LegalCitation - *d.SelfCitation
	return &v
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
