package models

import (
	"time"
)

// AttendanceStateRecord is the sqlite row backing AttendanceState. The
// state itself lives in Payload as JSON so the schema never has to migrate
// when display fields change; an unparsable payload is simply treated as
// "no prior state".
type AttendanceStateRecord struct {
	ChatID    int64     `gorm:"primarykey" json:"chat_id"`
	Payload   string    `gorm:"not null" json:"payload"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AttendanceStateRecord) TableName() string {
	return "attendance_states"
}
