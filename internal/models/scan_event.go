package models

import (
	"fmt"
	"time"
)

// ScanEvent is a local log entry for one confirmed transition. It exists
// purely for the /history command; the backend keeps the authoritative
// attendance records.
type ScanEvent struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	ChatID      int64      `gorm:"not null;index" json:"chat_id"`
	Kind        ActionKind `gorm:"type:varchar(20);not null" json:"kind"`
	RecordID    string     `json:"record_id"`
	ProjectName string     `json:"project_name"`
	HoursWorked *float64   `json:"hours_worked"`
	TotalHours  *float64   `json:"total_hours"`
	OccurredAt  time.Time  `gorm:"not null;index" json:"occurred_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ScanEvent) TableName() string {
	return "scan_events"
}

func (e *ScanEvent) IsValid() bool {
	if e.ChatID == 0 {
		return false
	}
	if e.Kind != ActionCheckIn && e.Kind != ActionCheckOut {
		return false
	}
	if e.ProjectName == "" {
		return false
	}
	return !e.OccurredAt.IsZero()
}

// FormatLine renders the event as one history-list line.
func (e *ScanEvent) FormatLine() string {
	when := e.OccurredAt.Local().Format("02.01 15:04")
	if e.Kind == ActionCheckIn {
		return fmt.Sprintf("🟢 %s - checked in to %s", when, e.ProjectName)
	}
	if e.HoursWorked != nil {
		return fmt.Sprintf("✅ %s - checked out of %s (%s)", when, e.ProjectName, FormatHours(*e.HoursWorked))
	}
	return fmt.Sprintf("✅ %s - checked out of %s", when, e.ProjectName)
}

// FormatHours renders fractional hours the way volunteers read them:
// "3h", "3h 30m", "45m".
func FormatHours(hours float64) string {
	total := int(hours*60 + 0.5)
	h := total / 60
	m := total % 60

	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
