package models

// CheckMode controls whether verification is triggered for a course module.
type CheckMode string

const (
	ModeDisabled  CheckMode = "disabled"
	ModeManual    CheckMode = "manual"
	ModeAutomatic CheckMode = "automatic"
)

// CourseModulePolicy is the per-(course, module) verification policy. It is
// written by the host's module-settings save hook and read-only here.
type CourseModulePolicy struct {
	CourseID         int64     `db:"courseid" json:"courseid"`
	CmID             int64     `db:"cmid" json:"cmid"`
	Mode             CheckMode `db:"mode" json:"mode"`
	CheckText        bool      `db:"check_text" json:"check_text"`
	CheckFile        bool      `db:"check_file" json:"check_file"`
	AddToIndex       bool      `db:"add_to_index" json:"add_to_index"`
	NoticeMode       string    `db:"notice_mode" json:"notice_mode"`
	StudentLimit     int       `db:"student_limit" json:"student_limit"`
	WorkType         string    `db:"work_type" json:"work_type"`
	ExcludedSections string    `db:"excluded_sections" json:"excluded_sections"`
	CheckerRole      string    `db:"checker_role" json:"checker_role"`
	ActionLogging    bool      `db:"action_logging" json:"action_logging"`
}

// LimitsSelfChecks reports whether the per-student check quota applies.
func (p *CourseModulePolicy) LimitsSelfChecks() bool {
	return p.StudentLimit > 0
}
