package models

import "time"

// ActionCode identifies a lifecycle transition in the action log. Code 14 is
// always "error received" regardless of which state the failure produced.
type ActionCode int

const (
	ActionEnqueue            ActionCode = 1
	ActionUploadStart        ActionCode = 2
	ActionUploadEnd          ActionCode = 3
	ActionCheckStart         ActionCode = 4
	ActionVerificationStart  ActionCode = 5
	ActionVerificationEnd    ActionCode = 6
	ActionIndexRemoveStart   ActionCode = 7
	ActionIndexRemoveEnd     ActionCode = 8
	ActionIndexAdd           ActionCode = 9
	ActionReportRefresh      ActionCode = 10
	ActionDocProcessingStart ActionCode = 11
	ActionDocProcessingEnd   ActionCode = 12
	ActionAttributeLoadStart ActionCode = 13
	ActionError              ActionCode = 14
	ActionAttributeLoadEnd   ActionCode = 15
)

// String returns the audit label for the action code.
func (a ActionCode) String() string {
	switch a {
	case ActionEnqueue:
		return "enqueue"
	case ActionUploadStart:
		return "upload_start"
	case ActionUploadEnd:
		return "upload_end"
	case ActionCheckStart:
		return "check_start"
	case ActionVerificationStart:
		return "verification_start"
	case ActionVerificationEnd:
		return "verification_end"
	case ActionIndexRemoveStart:
		return "index_remove_start"
	case ActionIndexRemoveEnd:
		return "index_remove_end"
	case ActionIndexAdd:
		return "index_add"
	case ActionReportRefresh:
		return "report_refresh"
	case ActionDocProcessingStart:
		return "doc_processing_start"
	case ActionDocProcessingEnd:
		return "doc_processing_end"
	case ActionAttributeLoadStart:
		return "attribute_load_start"
	case ActionAttributeLoadEnd:
		return "attribute_load_end"
	case ActionError:
		return "error_received"
	}
	return "unknown"
}

// ActionLogEntry is one append-only audit record. PolicySnapshot stores the
// policy in effect at call time as serialized text, not a live reference,
// since policy may change after the fact.
type ActionLogEntry struct {
	ID             string     `db:"id" json:"id"`
	DocID          *string    `db:"doc_id" json:"doc_id,omitempty"`
	ExternalID     *string    `db:"externalid" json:"externalid,omitempty"`
	ReportLink     *string    `db:"report_link" json:"report_link,omitempty"`
	Action         ActionCode `db:"action" json:"action"`
	CourseID       int64      `db:"courseid" json:"courseid"`
	CmID           int64      `db:"cmid" json:"cmid"`
	Assignment     *int64     `db:"assignment" json:"assignment,omitempty"`
	Discussion     *int64     `db:"discussion" json:"discussion,omitempty"`
	UserID         int64      `db:"userid" json:"userid"`
	AnswerID       int64      `db:"answerid" json:"answerid"`
	Status         DocStatus  `db:"status" json:"status"`
	Initiator      string     `db:"initiator" json:"initiator"`
	ErrorText      string     `db:"error_text" json:"error_text"`
	PolicySnapshot string     `db:"policy_snapshot" json:"policy_snapshot"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
