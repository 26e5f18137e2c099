package audit

import "time"

type Action string

const (
	ActionLinkSent          Action = "magic_link_sent"
	ActionLinkVerified      Action = "magic_link_verified"
	ActionLoginSuccess      Action = "login_success"
	ActionLoginFailure      Action = "login_failure"
	ActionSignupAttempt     Action = "signup_attempt"
	ActionLogout            Action = "logout"
	ActionRateLimitExceeded Action = "rate_limit_exceeded"
	ActionSessionCreated    Action = "session_created"
	ActionSessionExpired    Action = "session_expired"
)

// Entry is an append-only authentication event record. Rows are never
// updated; bulk retention is the only delete path and lives outside the
// auth core.
type Entry struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UserID       *uint     `json:"user_id,omitempty" gorm:"index"`
	Email        string    `json:"email" gorm:"size:255;index"`
	Action       Action    `json:"action" gorm:"size:64;not null;index"`
	Role         string    `json:"role,omitempty" gorm:"size:20"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"size:500"`
	IPAddress    string    `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent    string    `json:"user_agent,omitempty" gorm:"size:500"`
	Metadata     string    `json:"metadata,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

func (Entry) TableName() string {
	return "audit_log_entries"
}

// RequestInfo carries the request-scoped fields callers may attach to an
// entry.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}
