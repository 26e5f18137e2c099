package magiclink

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tasklinker/authcore/config"
	"github.com/tasklinker/authcore/services/audit"
	"github.com/tasklinker/authcore/services/logging"
	"github.com/tasklinker/authcore/services/ratelimit"
	"github.com/tasklinker/authcore/services/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sender delivers a magic link out-of-band. Email/SMS delivery is an
// external collaborator; the production implementation lives in
// services/mail.
type Sender interface {
	SendMagicLink(email, linkURL string, linkType LinkType, expiresAt time.Time) error
}

type Service struct {
	config  *config.Config
	db      *gorm.DB
	users   users.Store
	limiter *ratelimit.Service
	audit   *audit.Service
	logger  *logging.Service
	sender  Sender
}

func NewService(cfg *config.Config, db *gorm.DB, userStore users.Store, limiter *ratelimit.Service, auditSvc *audit.Service, logger *logging.Service) *Service {
	return &Service{
		config:  cfg,
		db:      db,
		users:   userStore,
		limiter: limiter,
		audit:   auditSvc,
		logger:  logger,
	}
}

func (s *Service) SetSender(sender Sender) {
	s.sender = sender
}

func (s *Service) generateToken() (string, error) {
	length := s.config.Auth.MagicLinkTokenLength
	if length < 16 {
		length = 16
	}

	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// Create issues a single-use magic link token for the email. Login links
// require an existing, active account of the matching role; signup links
// require the email to be unclaimed. The caller delivers the token.
func (s *Service) Create(email string, role users.Role, linkType LinkType, metadata map[string]string, req *audit.RequestInfo) (*MagicLinkToken, error) {
	email = users.NormalizeEmail(email)

	if s.logger != nil {
		s.logger.Info("magic link requested",
			zap.String("email", email),
			zap.String("link_type", string(linkType)),
			zap.String("role", string(role)))
	}

	if !ValidLinkType(linkType) || !users.ValidRole(role) {
		return nil, ErrInternalError
	}

	if !s.limiter.CheckAllowed(email, ratelimit.ActionMagicLinkRequest, s.config.Auth.RequestLimit, s.config.Auth.RequestWindow) {
		s.audit.RateLimitExceeded(email, ratelimit.ActionMagicLinkRequest, req)
		return nil, rateLimitError(s.limiter.BlockTimeRemaining(email, ratelimit.ActionMagicLinkRequest))
	}

	if err := s.checkUserState(email, role, linkType, req); err != nil {
		return nil, err
	}

	token, err := s.generateToken()
	if err != nil {
		if s.logger != nil {
			s.logger.Error("magic link token generation failed", zap.Error(err))
		}
		return nil, ErrInternalError
	}

	record := &MagicLinkToken{
		Token:     token,
		Email:     email,
		LinkType:  linkType,
		Role:      role,
		Metadata:  marshalMetadata(metadata),
		ExpiresAt: time.Now().Add(s.config.Auth.MagicLinkExpiry),
	}

	if err := s.db.Create(record).Error; err != nil {
		if s.logger != nil {
			s.logger.Error("failed to persist magic link token",
				zap.Error(err),
				zap.String("email", email))
		}
		return nil, ErrDatabaseError
	}

	s.audit.LinkSent(email, string(role), string(linkType), record.ExpiresAt, req)

	if s.logger != nil {
		s.logger.Info("magic link created",
			zap.String("email", email),
			zap.String("link_type", string(linkType)),
			zap.Time("expires_at", record.ExpiresAt))
	}
	return record, nil
}

func (s *Service) checkUserState(email string, role users.Role, linkType LinkType, req *audit.RequestInfo) error {
	user, err := s.users.FindByEmail(email)

	switch linkType {
	case LinkTypeLogin:
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				s.audit.LoginFailure(email, string(role), "user not found", req)
				return ErrUserNotFound
			}
			return ErrDatabaseError
		}
		if user.Role != role {
			s.audit.LoginFailure(email, string(role), "user type mismatch", req)
			return typeMismatchError(string(user.Role))
		}
		if !user.Active {
			s.audit.LoginFailure(email, string(role), "account inactive", req)
			return ErrAccountInactive
		}

	case LinkTypeSignup:
		if err == nil {
			s.audit.SignupAttempt(email, string(role), false, "email already registered", req)
			return ErrUserExists
		}
		if !errors.Is(err, users.ErrNotFound) {
			return ErrDatabaseError
		}
	}

	return nil
}

// Verify redeems a magic link token. Redemption is a compare-and-set at
// the storage layer: the UPDATE only matches while used_at is NULL, so of
// any number of concurrent calls exactly one wins and the rest observe
// ALREADY_USED. An in-process lock would not survive multiple instances.
func (s *Service) Verify(token string, role users.Role, req *audit.RequestInfo) (*Identity, error) {
	if !s.limiter.CheckAllowed(token, ratelimit.ActionMagicLinkVerify, s.config.Auth.VerifyLimit, s.config.Auth.VerifyWindow) {
		s.audit.RateLimitExceeded(token, ratelimit.ActionMagicLinkVerify, req)
		return nil, rateLimitError(s.limiter.BlockTimeRemaining(token, ratelimit.ActionMagicLinkVerify))
	}

	var record MagicLinkToken
	err := s.db.Where("token = ? AND role = ? AND used_at IS NULL", token, role).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.audit.LinkVerificationFailed("", string(role), "invalid token", req)
			return nil, ErrInvalidToken
		}
		if s.logger != nil {
			s.logger.Error("magic link lookup failed", zap.Error(err))
		}
		return nil, ErrDatabaseError
	}

	if time.Now().After(record.ExpiresAt) {
		s.audit.LinkVerificationFailed(record.Email, string(role), "token expired", req)
		return nil, ErrExpired
	}

	result := s.db.Model(&MagicLinkToken{}).
		Where("id = ? AND used_at IS NULL", record.ID).
		Update("used_at", time.Now())
	if result.Error != nil {
		if s.logger != nil {
			s.logger.Error("magic link redemption update failed", zap.Error(result.Error))
		}
		return nil, ErrDatabaseError
	}
	if result.RowsAffected == 0 {
		s.audit.LinkVerificationFailed(record.Email, string(role), "token already used", req)
		return nil, ErrAlreadyUsed
	}

	identity, err := s.resolveUser(&record, req)
	if err != nil {
		return nil, err
	}

	s.audit.LinkVerified(&identity.UserID, identity.Email, string(identity.Role), string(record.LinkType), req)

	if s.logger != nil {
		s.logger.Info("magic link verified",
			zap.String("email", identity.Email),
			zap.String("link_type", string(record.LinkType)),
			zap.Uint("user_id", identity.UserID))
	}
	return identity, nil
}

func (s *Service) resolveUser(record *MagicLinkToken, req *audit.RequestInfo) (*Identity, error) {
	switch record.LinkType {
	case LinkTypeSignup:
		return s.createUserFromLink(record, req)
	default:
		return s.lookupLoginUser(record, req)
	}
}

func (s *Service) lookupLoginUser(record *MagicLinkToken, req *audit.RequestInfo) (*Identity, error) {
	user, err := s.users.FindByEmail(record.Email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.audit.LoginFailure(record.Email, string(record.Role), "user not found", req)
			return nil, ErrUserNotFound
		}
		return nil, ErrDatabaseError
	}

	if !user.Active {
		s.audit.LoginFailure(record.Email, string(record.Role), "account inactive", req)
		return nil, ErrAccountInactive
	}

	s.audit.LoginSuccess(user.ID, user.Email, string(user.Role), req)

	return &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Name:   user.Name,
	}, nil
}

func (s *Service) createUserFromLink(record *MagicLinkToken, req *audit.RequestInfo) (*Identity, error) {
	user := &users.User{
		Email:    record.Email,
		Name:     signupName(record.Metadata),
		Role:     record.Role,
		Active:   true,
		Verified: true,
	}

	if err := s.users.Create(user); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			s.audit.SignupAttempt(record.Email, string(record.Role), false, "email already registered", req)
			return nil, ErrUserExists
		}
		if s.logger != nil {
			s.logger.Error("failed to create user from signup link",
				zap.Error(err),
				zap.String("email", record.Email))
		}
		s.audit.SignupAttempt(record.Email, string(record.Role), false, "user creation failed", req)
		return nil, ErrUserCreateFailed
	}

	s.audit.SignupAttempt(user.Email, string(user.Role), true, "", req)

	return &Identity{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Name:   user.Name,
	}, nil
}

// Request issues a token and hands the verification URL to the configured
// sender. Delivery stays out-of-band: without a sender the token is only
// created, which callers use when another collaborator handles delivery.
func (s *Service) Request(email string, role users.Role, linkType LinkType, metadata map[string]string, req *audit.RequestInfo) (*MagicLinkToken, error) {
	record, err := s.Create(email, role, linkType, metadata, req)
	if err != nil {
		return nil, err
	}

	if s.sender == nil {
		if s.logger != nil {
			s.logger.Warn("no magic link sender configured, skipping delivery",
				zap.String("email", record.Email))
		}
		return record, nil
	}

	linkURL := fmt.Sprintf("%s/auth/verify?token=%s&role=%s", s.config.App.URL, record.Token, record.Role)

	if err := s.sender.SendMagicLink(record.Email, linkURL, record.LinkType, record.ExpiresAt); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to send magic link",
				zap.Error(err),
				zap.String("email", record.Email))
		}
		return nil, ErrInternalError
	}

	return record, nil
}

// CleanupExpired deletes tokens whose expiry is older than the retention
// window. Recently expired tokens stay around for audit and debugging.
// Idempotent; returns the number deleted.
func (s *Service) CleanupExpired() (int64, error) {
	cutoff := time.Now().Add(-s.config.Auth.MagicLinkRetention)

	result := s.db.Where("expires_at < ?", cutoff).Delete(&MagicLinkToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup expired magic link tokens: %w", result.Error)
	}

	if s.logger != nil && result.RowsAffected > 0 {
		s.logger.Info("expired magic link tokens cleaned up", zap.Int64("tokens_removed", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func marshalMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}

	data, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}

	return string(data)
}

func signupName(metadata string) string {
	if metadata == "" {
		return "New User"
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(metadata), &fields); err != nil {
		return "New User"
	}

	name := strings.TrimSpace(strings.TrimSpace(fields["firstName"]) + " " + strings.TrimSpace(fields["lastName"]))
	if name == "" {
		return "New User"
	}

	return name
}
