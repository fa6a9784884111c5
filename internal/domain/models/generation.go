package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationLog is the append-only record of one dispatch attempt. Entries are
// never updated or deleted by the dispatcher.
type GenerationLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ScheduleID uuid.UUID `gorm:"type:uuid;index;not null" json:"schedule_id"`
	OwnerID    uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id"`
	Status     string    `gorm:"size:20;not null;index" json:"status"`
	Message    string    `gorm:"type:text" json:"message"`
	ContentKey *string   `gorm:"size:500" json:"content_key,omitempty"`
	Trigger    string    `gorm:"size:20;not null" json:"trigger"`
	DurationMs int       `gorm:"default:0" json:"duration_ms"`
	Metadata   JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`

	Schedule Schedule `gorm:"foreignKey:ScheduleID" json:"-"`
	Owner    User     `gorm:"foreignKey:OwnerID" json:"-"`
}

func (GenerationLog) TableName() string {
	return "generation_logs"
}
