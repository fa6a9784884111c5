package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Schedule is one persisted instruction to periodically generate content for a
// website on behalf of one owner. DayOfWeek is set iff frequency is weekly,
// DayOfMonth iff monthly; both are absent for daily and once.
type Schedule struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID           uuid.UUID      `gorm:"type:uuid;index;not null" json:"owner_id"`
	WebsiteURL        string         `gorm:"size:500;not null" json:"website_url"`
	Frequency         string         `gorm:"size:20;not null" json:"frequency"`
	DayOfWeek         *int           `json:"day_of_week,omitempty"`
	DayOfMonth        *int           `json:"day_of_month,omitempty"`
	TimeOfDay         string         `gorm:"size:5;not null" json:"time_of_day"`
	CronExpression    *string        `gorm:"size:100" json:"cron_expression,omitempty"`
	Timezone          string         `gorm:"size:50;default:UTC" json:"timezone"`
	Topics            StringArray    `gorm:"type:text[]" json:"topics,omitempty"`
	IsActive          bool           `gorm:"default:true;index" json:"is_active"`
	NextRunAt         *time.Time     `gorm:"index" json:"next_run_at,omitempty"`
	LastRunAt         *time.Time     `json:"last_run_at,omitempty"`
	LastError         *string        `gorm:"type:text" json:"last_error,omitempty"`
	StatusMessage     *string        `gorm:"size:255" json:"status_message,omitempty"`
	SuccessCount      int            `gorm:"default:0" json:"success_count"`
	FailureCount      int            `gorm:"default:0" json:"failure_count"`
	ExternalMessageID *string        `gorm:"size:100" json:"external_message_id,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	Owner User `gorm:"foreignKey:OwnerID" json:"-"`
}

func (Schedule) TableName() string {
	return "schedules"
}

// Recurring reports whether the schedule fires more than once.
func (s *Schedule) Recurring() bool {
	return s.Frequency != FrequencyOnce
}
