package models

import (
	"time"
)

// Attendance modes. Exactly one of these describes a chat at any moment;
// the old two-boolean encoding (isCheckingIn/isCheckingOut) allowed
// impossible combinations and is gone on purpose.
type AttendanceMode string

const (
	ModeReadyToCheckIn AttendanceMode = "ready_to_check_in"
	ModeCheckedIn      AttendanceMode = "checked_in"
)

// Action kinds as the backend reports them.
type ActionKind string

const (
	ActionCheckIn  ActionKind = "check-in"
	ActionCheckOut ActionKind = "check-out"
)

// CompletedAction is the most recently finished transition, kept around so
// the bot can still show "you checked out of X at 17:03" after the session
// itself is closed.
type CompletedAction struct {
	Kind        ActionKind `json:"kind"`
	ProjectName string     `json:"project_name"`
	At          time.Time  `json:"at"`
}

// AttendanceState is the per-chat attendance snapshot the bot persists
// locally. The three Active* fields are set if and only if Mode is
// ModeCheckedIn; IsValid enforces that.
type AttendanceState struct {
	Mode              AttendanceMode   `json:"mode"`
	ActiveRecordID    *string          `json:"active_record_id,omitempty"`
	ActiveProjectName *string          `json:"active_project_name,omitempty"`
	CheckedInAt       *time.Time       `json:"checked_in_at,omitempty"`
	LastAction        *CompletedAction `json:"last_action,omitempty"`
}

// NewReadyState returns the default state: not checked in, no history.
func NewReadyState() *AttendanceState {
	return &AttendanceState{Mode: ModeReadyToCheckIn}
}

// NewCheckedInState builds a checked-in state from a successful check-in.
func NewCheckedInState(recordID, projectName string, checkedInAt time.Time) *AttendanceState {
	return &AttendanceState{
		Mode:              ModeCheckedIn,
		ActiveRecordID:    &recordID,
		ActiveProjectName: &projectName,
		CheckedInAt:       &checkedInAt,
	}
}

func (s *AttendanceState) IsCheckedIn() bool {
	return s.Mode == ModeCheckedIn
}

// IsValid checks that the active-session fields agree with the mode:
// all present when checked in, all absent otherwise.
func (s *AttendanceState) IsValid() bool {
	switch s.Mode {
	case ModeCheckedIn:
		return s.ActiveRecordID != nil && *s.ActiveRecordID != "" &&
			s.ActiveProjectName != nil && *s.ActiveProjectName != "" &&
			s.CheckedInAt != nil && !s.CheckedInAt.IsZero()
	case ModeReadyToCheckIn:
		return s.ActiveRecordID == nil && s.ActiveProjectName == nil && s.CheckedInAt == nil
	default:
		return false
	}
}

// CheckedInOn reports whether the check-in happened on the same local
// calendar day as now. A checked-in state from a previous day is stale:
// the volunteer forgot to check out and must not keep accruing hours.
func (s *AttendanceState) CheckedInOn(now time.Time) bool {
	if s.CheckedInAt == nil {
		return false
	}
	in := s.CheckedInAt.Local()
	return in.Year() == now.Year() && in.Month() == now.Month() && in.Day() == now.Day()
}

// TransitionOutcome is what the backend returns for a scan or manual
// check-out. It is never persisted as-is; the service derives the next
// AttendanceState from it.
type TransitionOutcome struct {
	Action      ActionKind
	RecordID    string
	ProjectName string
	ServerTime  time.Time

	// Set by the backend on check-out only. Nil means the numbers were
	// not reported and will show up in history later.
	HoursWorked *float64
	TotalHours  *float64
}
