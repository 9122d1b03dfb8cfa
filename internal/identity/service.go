// ABOUTME: Identity service orchestrating registration, login, and credential flows
// ABOUTME: Combines the store, one-time codes, and email notifications

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/auth"
	"github.com/2389/grimoire/internal/store"
)

// ErrInvalidCredentials is returned for every authentication failure.
// Callers never learn whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store defines what the identity service needs from storage
type Store interface {
	CreateUser(ctx context.Context, user *store.User) error
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	MarkUserVerified(ctx context.Context, id string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	TouchUserLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	IssueOTP(ctx context.Context, email, purpose string, ttl time.Duration) (*store.OTP, error)
	ConsumeOTP(ctx context.Context, email, purpose, code string) error

	AppendAuditLog(ctx context.Context, entry *store.AuditEntry) error
}

// Notifier defines what the identity service needs for email delivery
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}

// Service implements the account lifecycle flows.
type Service struct {
	store      Store
	notifier   Notifier
	bcryptCost int
	otpTTL     time.Duration
	logger     *slog.Logger
}

// New creates an identity service. A bcryptCost of 0 selects the bcrypt
// default; an otpTTL of 0 selects the store default.
func New(st Store, notifier Notifier, bcryptCost int, otpTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		notifier:   notifier,
		bcryptCost: bcryptCost,
		otpTTL:     otpTTL,
		logger:     logger.With("component", "identity"),
	}
}

// Register creates an unverified account and emails a verification code.
//
// The account is committed before anything is sent: a mail failure is
// logged, not returned, since the user can request a fresh code later.
// A duplicate email surfaces as store.ErrDuplicateEmail untouched.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*store.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	otp, err := s.store.IssueOTP(ctx, email, store.OTPPurposeVerification, s.otpTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing verification code: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, email, otp.Code); err != nil {
		s.logger.Error("failed to send verification email", "email", email, "error", err)
	}

	s.audit(user.ID, store.AuditUserRegistered, "user", user.ID, map[string]any{"email": email})
	s.logger.Info("registered user", "id", user.ID, "email", email)
	return user, nil
}

// Authenticate checks an email/password pair and returns the account.
//
// Every failure is ErrInvalidCredentials. Unknown emails burn a dummy
// bcrypt comparison so they cost the same as wrong passwords.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.DummyCompare(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.store.TouchUserLogin(ctx, user.ID, now); err != nil {
		// Login already succeeded; the timestamp is bookkeeping
		s.logger.Warn("failed to record last login", "id", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}

	s.audit(user.ID, store.AuditLoginSucceeded, "user", user.ID, nil)
	s.logger.Debug("authenticated user", "id", user.ID)
	return user, nil
}

// RequestVerification re-issues a verification code for an existing account.
// Unknown emails return store.ErrNotFound.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	if _, err := s.store.GetUserByEmail(ctx, email); err != nil {
		return err
	}

	otp, err := s.store.IssueOTP(ctx, email, store.OTPPurposeVerification, s.otpTTL)
	if err != nil {
		return fmt.Errorf("issuing verification code: %w", err)
	}

	if err := s.notifier.SendVerificationCode(ctx, email, otp.Code); err != nil {
		return fmt.Errorf("sending verification email: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a reset code for an existing account.
// Unknown emails return store.ErrNotFound.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.store.GetUserByEmail(ctx, email); err != nil {
		return err
	}

	otp, err := s.store.IssueOTP(ctx, email, store.OTPPurposeReset, s.otpTTL)
	if err != nil {
		return fmt.Errorf("issuing reset code: %w", err)
	}

	if err := s.notifier.SendPasswordResetCode(ctx, email, otp.Code); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}
	return nil
}

// VerifyEmail consumes a verification code and marks the account verified.
//
// The consumption is deliberately not rolled back when no account exists:
// the code was valid and is now burned.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (*store.User, error) {
	if err := s.store.ConsumeOTP(ctx, email, store.OTPPurposeVerification, code); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkUserVerified(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("marking user verified: %w", err)
	}
	user.Verified = true

	s.audit(user.ID, store.AuditUserVerified, "user", user.ID, nil)
	s.logger.Info("verified user email", "id", user.ID)
	return user, nil
}

// ResetPassword consumes a reset code and replaces the account's password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	// Hash first so an unusable password never burns the code
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if err := s.store.ConsumeOTP(ctx, email, store.OTPPurposeReset, code); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := s.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	s.audit(user.ID, store.AuditPasswordChanged, "user", user.ID, nil)
	s.logger.Info("reset user password", "id", user.ID)
	return nil
}

// DeleteAccount removes a user and everything they own. Owner or admin
// only; anyone else learns nothing beyond store.ErrNotFound.
func (s *Service) DeleteAccount(ctx context.Context, p access.Principal, userID string) error {
	if !p.CanAccess(userID) {
		return store.ErrNotFound
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}

	s.audit(p.UserID, store.AuditAccountDeleted, "user", userID, nil)
	s.logger.Info("deleted account", "id", userID, "actor", p.UserID)
	return nil
}

// GetUser returns an account profile. Owner or admin only.
func (s *Service) GetUser(ctx context.Context, p access.Principal, userID string) (*store.User, error) {
	if !p.CanAccess(userID) {
		return nil, store.ErrNotFound
	}
	return s.store.GetUser(ctx, userID)
}

// audit appends a best-effort audit entry. The guarded operation already
// committed, so failures are logged and swallowed. A detached context keeps
// the append alive even when the caller's context is already done.
func (s *Service) audit(actorID string, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := &store.AuditEntry{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if actorID != "" {
		entry.ActorID = &actorID
	}
	if err := s.store.AppendAuditLog(ctx, entry); err != nil {
		s.logger.Error("failed to append audit entry", "action", string(action), "error", err)
	}
}
