package ratelimit

import "time"

const (
	ActionMagicLinkRequest = "magic_link_request"
	ActionMagicLinkVerify  = "magic_link_verification"
)

type RateLimitRecord struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Identifier      string     `json:"identifier" gorm:"size:255;not null;uniqueIndex:idx_rate_limit_identity,priority:1"`
	Action          string     `json:"action" gorm:"size:64;not null;uniqueIndex:idx_rate_limit_identity,priority:2"`
	Attempts        int        `json:"attempts" gorm:"not null;default:0"`
	WindowStartedAt time.Time  `json:"window_started_at" gorm:"not null"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (RateLimitRecord) TableName() string {
	return "rate_limit_records"
}
