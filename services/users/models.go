package users

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email is already registered")
	ErrInvalidRole   = errors.New("invalid user role")
	ErrInvalidUserID = errors.New("invalid user id")
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

func ValidRole(role Role) bool {
	switch role {
	case RoleClient, RoleFreelancer, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Name      string    `json:"name" gorm:"size:255"`
	Role      Role      `json:"role" gorm:"size:20;not null;index"`
	Active    bool      `json:"active" gorm:"default:true"`
	Verified  bool      `json:"verified" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Store is the user persistence contract the authentication core consumes.
// The wider application owns users; the core only needs lookup and signup
// insertion.
type Store interface {
	FindByEmail(email string) (*User, error)
	Create(user *User) error
	Deactivate(userID uint) error
}
