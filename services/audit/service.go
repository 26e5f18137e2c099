package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tasklinker/authcore/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

// Log appends an entry to the audit trail. It never returns an error:
// a failed audit write must not break the authentication flow it is
// recording, so storage failures only reach the process log.
func (s *Service) Log(entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.db.Create(&entry).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("audit log write failed",
				zap.Error(err),
				zap.String("action", string(entry.Action)),
				zap.String("email", entry.Email))
		}
	}
}

func marshalMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}

	return string(data)
}

func (s *Service) LinkSent(email, role, linkType string, expiresAt time.Time, req *RequestInfo) {
	entry := Entry{
		Email:   email,
		Action:  ActionLinkSent,
		Role:    role,
		Success: true,
		Metadata: marshalMetadata(map[string]any{
			"link_type":  linkType,
			"expires_at": expiresAt.Format(time.RFC3339),
		}),
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) LinkVerified(userID *uint, email, role, linkType string, req *RequestInfo) {
	entry := Entry{
		UserID:  userID,
		Email:   email,
		Action:  ActionLinkVerified,
		Role:    role,
		Success: true,
		Metadata: marshalMetadata(map[string]any{
			"link_type": linkType,
		}),
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) LinkVerificationFailed(email, role, reason string, req *RequestInfo) {
	entry := Entry{
		Email:        email,
		Action:       ActionLinkVerified,
		Role:         role,
		Success:      false,
		ErrorMessage: reason,
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) LoginSuccess(userID uint, email, role string, req *RequestInfo) {
	entry := Entry{
		UserID:  &userID,
		Email:   email,
		Action:  ActionLoginSuccess,
		Role:    role,
		Success: true,
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) LoginFailure(email, role, reason string, req *RequestInfo) {
	entry := Entry{
		Email:        email,
		Action:       ActionLoginFailure,
		Role:         role,
		Success:      false,
		ErrorMessage: reason,
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) SignupAttempt(email, role string, success bool, reason string, req *RequestInfo) {
	entry := Entry{
		Email:        email,
		Action:       ActionSignupAttempt,
		Role:         role,
		Success:      success,
		ErrorMessage: reason,
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) Logout(userID uint, email string, req *RequestInfo) {
	entry := Entry{
		UserID:  &userID,
		Email:   email,
		Action:  ActionLogout,
		Success: true,
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) RateLimitExceeded(identifier, action string, req *RequestInfo) {
	entry := Entry{
		Email:        identifier,
		Action:       ActionRateLimitExceeded,
		Success:      false,
		ErrorMessage: "rate limit exceeded",
		Metadata: marshalMetadata(map[string]any{
			"limited_action": action,
		}),
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) SessionCreated(userID uint, email, role, sessionID string, req *RequestInfo) {
	entry := Entry{
		UserID:  &userID,
		Email:   email,
		Action:  ActionSessionCreated,
		Role:    role,
		Success: true,
		Metadata: marshalMetadata(map[string]any{
			"session_id": sessionID,
		}),
	}
	applyRequestInfo(&entry, req)
	s.Log(entry)
}

func (s *Service) SessionExpired(userID uint, sessionID string) {
	s.Log(Entry{
		UserID:  &userID,
		Action:  ActionSessionExpired,
		Success: false,
		Metadata: marshalMetadata(map[string]any{
			"session_id": sessionID,
		}),
	})
}

func applyRequestInfo(entry *Entry, req *RequestInfo) {
	if req == nil {
		return
	}
	entry.IPAddress = req.IPAddress
	entry.UserAgent = req.UserAgent
}

// Recent returns the newest entries, newest first.
func (s *Service) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	err := s.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent audit entries: %w", err)
	}

	return entries, nil
}

// ForUser returns the newest entries for a user, newest first.
func (s *Service) ForUser(userID uint, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []Entry
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries for user: %w", err)
	}

	return entries, nil
}

// FailedAttempts returns failed entries for an email since the given time.
// Security monitoring uses this for lockout policy decisions.
func (s *Service) FailedAttempts(email string, since time.Time) ([]Entry, error) {
	var entries []Entry
	err := s.db.Where("email = ? AND success = ? AND created_at >= ?", email, false, since).
		Order("created_at DESC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query failed attempts: %w", err)
	}

	return entries, nil
}
