package users

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *gormStore) FindByEmail(email string) (*User, error) {
	var user User
	if err := s.db.Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return &user, nil
}

func (s *gormStore) Create(user *User) error {
	if !ValidRole(user.Role) {
		return ErrInvalidRole
	}

	user.Email = NormalizeEmail(user.Email)

	var count int64
	if err := s.db.Model(&User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check for existing user: %w", err)
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (s *gormStore) Deactivate(userID uint) error {
	if userID == 0 {
		return ErrInvalidUserID
	}

	result := s.db.Model(&User{}).Where("id = ?", userID).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
