package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tasklinker/authcore/services/users"
)

// Session is the server-side record a signed token must resolve to. A
// cryptographically valid token whose session row is missing, inactive or
// expired is treated as unauthenticated.
type Session struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	UserID         uint       `json:"user_id" gorm:"not null;index"`
	Token          string     `json:"-" gorm:"size:1000;not null"`
	Role           users.Role `json:"role" gorm:"size:20;not null"`
	IPAddress      string     `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent      string     `json:"user_agent,omitempty" gorm:"size:500"`
	Active         bool       `json:"active" gorm:"default:true;index"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"not null;index"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// UserData is the identity a session is minted for.
type UserData struct {
	UserID uint       `json:"user_id"`
	Email  string     `json:"email"`
	Role   users.Role `json:"role"`
	Name   string     `json:"name"`
}

// Claims are embedded in the signed token. The server-side record remains
// authoritative for expiry and revocation.
type Claims struct {
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Data is the merged view returned by Validate: token identity plus
// server-side session timestamps.
type Data struct {
	SessionID string     `json:"session_id"`
	UserID    uint       `json:"user_id"`
	Email     string     `json:"email"`
	Role      users.Role `json:"role"`
	Name      string     `json:"name"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Info is the admin-facing session listing entry.
type Info struct {
	ID             string    `json:"id"`
	UserID         uint      `json:"user_id"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	IPAddress      string    `json:"ip_address"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}
