// ABOUTME: OTP ledger: issuance, atomic consume-and-flip, and purge
// ABOUTME: Pending flips to Consumed exactly once; expiry is a predicate, never a stored state

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// IssueOTP inserts a new pending code for email+purpose. Prior pending
// entries for the same pair are left untouched; several may coexist.
// A ttl of zero uses DefaultOTPTTL.
func (s *SQLiteStore) IssueOTP(ctx context.Context, email, purpose string, ttl time.Duration) (*OTP, error) {
	if ttl == 0 {
		ttl = DefaultOTPTTL
	}

	code, err := generateOTPCode()
	if err != nil {
		return nil, fmt.Errorf("generating code: %w", err)
	}

	now := time.Now().UTC()
	otp := &OTP{
		ID:        uuid.New().String(),
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	query := `
		INSERT INTO otps (id, email, code, purpose, created_at, expires_at, consumed_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL)
	`

	_, err = s.db.ExecContext(ctx, query,
		otp.ID,
		otp.Email,
		otp.Code,
		otp.Purpose,
		otp.CreatedAt.Format(timeFormatNano),
		otp.ExpiresAt.Format(timeFormatNano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting otp: %w", err)
	}

	// The code itself is never logged.
	s.logger.Debug("issued otp", "id", otp.ID, "email", email, "purpose", purpose)
	return otp, nil
}

// ConsumeOTP atomically consumes the newest pending code matching
// email+purpose+code. Exactly one caller can win a given entry; everyone
// else sees ErrCodeUsed, ErrCodeExpired, or ErrInvalidCode. A consumed row
// is terminal and is never updated again.
func (s *SQLiteStore) ConsumeOTP(ctx context.Context, email, purpose, code string) error {
	now := time.Now().UTC().Format(timeFormatNano)

	// Atomic consume-and-flip. The subquery pins the newest pending match
	// (creation-time ties broken by id so the outcome is deterministic);
	// the outer conditions re-check state so a TOCTOU race cannot consume
	// twice or consume an expired entry.
	query := `
		UPDATE otps
		SET consumed_at = ?
		WHERE id = (
			SELECT id FROM otps
			WHERE email = ? AND purpose = ? AND code = ? AND consumed_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		  AND consumed_at IS NULL
		  AND expires_at > ?
	`

	result, err := s.db.ExecContext(ctx, query, now, email, purpose, code, now)
	if err != nil {
		return fmt.Errorf("consuming otp: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Info("otp consumed", "email", email, "purpose", purpose)
		return nil
	}

	return s.diagnoseOTPFailure(ctx, email, purpose, code)
}

// diagnoseOTPFailure explains a consume that flipped no row.
func (s *SQLiteStore) diagnoseOTPFailure(ctx context.Context, email, purpose, code string) error {
	// Newest unconsumed match first: if one exists, the flip can only have
	// failed on expiry.
	query := `
		SELECT expires_at FROM otps
		WHERE email = ? AND purpose = ? AND code = ? AND consumed_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var expiresAtStr string
	err := s.db.QueryRowContext(ctx, query, email, purpose, code).Scan(&expiresAtStr)
	if err == nil {
		expiresAt, perr := parseTime(expiresAtStr)
		if perr != nil {
			return fmt.Errorf("parsing expires_at: %w", perr)
		}
		if time.Now().After(expiresAt) {
			return ErrCodeExpired
		}
		// The ledger moved between the two statements (a fresh issuance
		// landed); report invalid rather than guess.
		return ErrInvalidCode
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("querying otp: %w", err)
	}

	// No pending match. A consumed row with the same code means replay.
	var consumed int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM otps
		WHERE email = ? AND purpose = ? AND code = ? AND consumed_at IS NOT NULL
	`, email, purpose, code).Scan(&consumed)
	if err != nil {
		return fmt.Errorf("querying consumed otp: %w", err)
	}
	if consumed > 0 {
		return ErrCodeUsed
	}

	return ErrInvalidCode
}

// PurgeOTPs deletes consumed-or-expired entries created before olderThan
// and returns how many went. Pending, unexpired codes are never purged
// regardless of age. Housekeeping only; correctness never depends on it.
func (s *SQLiteStore) PurgeOTPs(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC().Format(timeFormatNano)

	query := `
		DELETE FROM otps
		WHERE created_at < ?
		  AND (consumed_at IS NOT NULL OR expires_at <= ?)
	`

	result, err := s.db.ExecContext(ctx, query, olderThan.UTC().Format(timeFormatNano), now)
	if err != nil {
		return 0, fmt.Errorf("purging otps: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Debug("purged otps", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// generateOTPCode returns a 6-digit code from crypto/rand, uniform over
// [100000, 999999].
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}
