package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan struct {
	ID             string    `gorm:"size:50;primaryKey" json:"id"`
	Name           string    `gorm:"size:100;not null" json:"name"`
	Description    *string   `gorm:"type:text" json:"description,omitempty"`
	PriceMonthly   int       `gorm:"not null" json:"price_monthly"` // cents
	MonthlyCredits int       `gorm:"not null" json:"monthly_credits"`
	SchedulesLimit int       `gorm:"not null" json:"schedules_limit"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	SortOrder      int       `gorm:"default:0" json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plans"
}

// Subscription carries the owner's consumable credit balance. One credit is
// consumed per successful generation; the balance never goes below zero.
type Subscription struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	OwnerID            uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"owner_id"`
	PlanID             string    `gorm:"size:50;not null" json:"plan_id"`
	Status             string    `gorm:"size:20;not null;default:active" json:"status"`
	CreditsAvailable   int       `gorm:"default:0;check:credits_available >= 0" json:"credits_available"`
	CurrentPeriodStart time.Time `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"not null" json:"current_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Owner User `gorm:"foreignKey:OwnerID" json:"-"`
	Plan  Plan `gorm:"foreignKey:PlanID" json:"-"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
