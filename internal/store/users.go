// ABOUTME: User account persistence: creation, lookup, credential mutations
// ABOUTME: Account deletion cascades to owned agents, conversations, and messages

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateUser creates a new account. ID and timestamps are generated when
// unset. Returns ErrDuplicateEmail if the email already has an account;
// the uniqueness check and the insert are a single atomic statement.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	query := `
		INSERT INTO users (id, email, password_hash, full_name, is_verified, is_admin, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FullName,
		user.Verified,
		user.Admin,
		user.CreatedAt.UTC().Format(time.RFC3339),
		user.UpdatedAt.UTC().Format(time.RFC3339),
		nullTime(user.LastLogin),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Info("created user", "id", user.ID, "email", user.Email)
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, password_hash, full_name, is_verified, is_admin, created_at, updated_at, last_login
		FROM users
		WHERE id = ?
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email. The lookup is exact; emails are
// stored as given.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, full_name, is_verified, is_admin, created_at, updated_at, last_login
		FROM users
		WHERE email = ?
	`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	return user, nil
}

// MarkUserVerified flags the account's email as verified.
func (s *SQLiteStore) MarkUserVerified(ctx context.Context, id string) error {
	query := `
		UPDATE users
		SET is_verified = 1, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("marking user verified: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("marked user verified", "id", id)
	return nil
}

// UpdateUserPassword replaces the stored password hash. The store only ever
// sees bcrypt hashes; hashing happens in the auth layer.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated user password", "id", id)
	return nil
}

// TouchUserLogin records a successful authentication time. It does not bump
// updated_at; last_login is operational metadata, not a profile change.
func (s *SQLiteStore) TouchUserLogin(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE users
		SET last_login = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("touching user login: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("touched user login", "id", id)
	return nil
}

// DeleteUser removes the account. Foreign keys cascade the delete to owned
// agents, conversations, and their messages atomically with the user row.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted user account", "id", id)
	return nil
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (*User, error) {
	var user User
	var createdAtStr, updatedAtStr string
	var lastLoginStr sql.NullString

	err := scanner.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Verified,
		&user.Admin,
		&createdAtStr,
		&updatedAtStr,
		&lastLoginStr,
	)
	if err != nil {
		return nil, err
	}

	if user.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTime(updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if lastLoginStr.Valid {
		t, err := parseTime(lastLoginStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_login: %w", err)
		}
		user.LastLogin = &t
	}

	return &user, nil
}
