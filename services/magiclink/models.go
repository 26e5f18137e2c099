package magiclink

import (
	"time"

	"github.com/tasklinker/authcore/services/users"
)

type LinkType string

const (
	LinkTypeLogin  LinkType = "login"
	LinkTypeSignup LinkType = "signup"
)

func ValidLinkType(linkType LinkType) bool {
	return linkType == LinkTypeLogin || linkType == LinkTypeSignup
}

// MagicLinkToken is a single-use credential. UsedAt transitions from NULL
// to a timestamp exactly once; the conditional update in Verify is the
// only writer.
type MagicLinkToken struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Token     string     `json:"-" gorm:"uniqueIndex;size:128;not null"`
	Email     string     `json:"email" gorm:"index;size:255;not null"`
	LinkType  LinkType   `json:"link_type" gorm:"size:10;not null"`
	Role      users.Role `json:"role" gorm:"size:20;not null"`
	Metadata  string     `json:"metadata,omitempty" gorm:"type:text"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null;index"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (MagicLinkToken) TableName() string {
	return "magic_link_tokens"
}

// Identity is the public view of the user a verified link resolves to.
type Identity struct {
	UserID uint       `json:"user_id"`
	Email  string     `json:"email"`
	Role   users.Role `json:"role"`
	Name   string     `json:"name"`
}
