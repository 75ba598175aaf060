package models

import "time"

// ContentRef locates a submission's content in the host mirror tables.
type ContentRef struct {
	DocType    DocType
	TypeID     string
	CourseID   int64
	CmID       int64
	UserID     int64
	AnswerID   int64
	Discussion *int64
	Assignment *int64
}

// ResolvedContent is a submission body fetched from the host mirror. Exactly
// one of Text and File carries data, selected by IsFile.
type ResolvedContent struct {
	IsFile   bool
	Text     string
	Filename string
	Data     []byte
}

// Empty reports whether the host still has any content for the reference.
func (c *ResolvedContent) Empty() bool {
	if c == nil {
		return true
	}
	if c.IsFile {
		return len(c.Data) == 0
	}
	return c.Text == ""
}

// Naming bundles the human-readable context attached to uploads.
type Naming struct {
	CourseName string
	ModuleName string
	TopicName  string
}

// SubmissionEvent is a host notification that content was created, edited,
// finalized or unlocked. It is the input to the enqueue policy.
type SubmissionEvent struct {
	DocType       DocType `json:"doctype" validate:"required"`
	CourseID      int64   `json:"courseid" validate:"required"`
	CmID          int64   `json:"cmid" validate:"required"`
	UserID        int64   `json:"userid" validate:"required"`
	AnswerID      int64   `json:"answerid" validate:"required"`
	Discussion    *int64  `json:"discussion,omitempty"`
	Assignment    *int64  `json:"assignment,omitempty"`
	AttemptNumber int     `json:"attemptnumber"`

	Content  string `json:"content,omitempty"`
	FileID   string `json:"fileid,omitempty"`
	Filename string `json:"filename,omitempty"`

	// Submitted is false for assignment drafts that still await the
	// explicit submit/lock step.
	Submitted  bool      `json:"submitted"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`

	Author AuthorContext `json:"author"`
}

// IsFile reports whether the event carries a file reference instead of text.
func (e *SubmissionEvent) IsFile() bool {
	return e.FileID != ""
}

// Edited reports whether the host flagged this as a change to an earlier
// submission, which triggers retraction of superseded rows.
func (e *SubmissionEvent) Edited() bool {
	return e.ModifiedAt.After(e.CreatedAt)
}
