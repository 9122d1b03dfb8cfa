// ABOUTME: Tests for the identity service account flows
// ABOUTME: Runs against a real SQLite store with a capturing fake notifier

package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/grimoire/internal/access"
	"github.com/2389/grimoire/internal/store"
)

// fakeNotifier records the last code sent per purpose and email.
type fakeNotifier struct {
	verification map[string]string
	reset        map[string]string
	err          error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		verification: make(map[string]string),
		reset:        make(map[string]string),
	}
}

func (f *fakeNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.verification[email] = code
	return nil
}

func (f *fakeNotifier) SendPasswordResetCode(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.reset[email] = code
	return nil
}

func setupTestService(t *testing.T) (*Service, *store.SQLiteStore, *fakeNotifier) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	notifier := newFakeNotifier()
	svc := New(st, notifier, bcrypt.MinCost, time.Minute, nil)
	return svc, st, notifier
}

func TestService_Register(t *testing.T) {
	svc, st, notifier := setupTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	assert.False(t, user.Verified)
	assert.NotEqual(t, "secret-password", user.PasswordHash)

	// Account row exists
	stored, err := st.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
	assert.Equal(t, "Alice", stored.FullName)

	// A verification code went out
	code := notifier.verification["alice@example.com"]
	require.Len(t, code, 6)

	// Registration is audited
	entries, err := st.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, store.AuditUserRegistered, entries[0].Action)
	assert.Equal(t, user.ID, entries[0].TargetID)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "password-one", "Alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@example.com", "password-two", "Imposter")
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestService_Register_MailFailureStillRegisters(t *testing.T) {
	svc, st, notifier := setupTestService(t)
	notifier.err = errors.New("smtp down")
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)

	// The account exists even though the email could not be delivered
	_, err = st.GetUser(ctx, user.ID)
	assert.NoError(t, err)
}

func TestService_Authenticate(t *testing.T) {
	svc, st, _ := setupTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "alice@example.com", "secret-password")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	require.NotNil(t, user.LastLogin)

	// last_login persisted
	stored, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
}

func TestService_Authenticate_UniformFailure(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)

	// Wrong password and unknown email must be indistinguishable
	_, wrongPass := svc.Authenticate(ctx, "alice@example.com", "not-the-password")
	_, unknownEmail := svc.Authenticate(ctx, "nobody@example.com", "whatever")

	assert.ErrorIs(t, wrongPass, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPass.Error(), unknownEmail.Error())
}

func TestService_VerifyEmail(t *testing.T) {
	svc, st, notifier := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)

	code := notifier.verification["alice@example.com"]
	require.NotEmpty(t, code)

	user, err := svc.VerifyEmail(ctx, "alice@example.com", code)
	require.NoError(t, err)
	assert.True(t, user.Verified)

	stored, err := st.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.Verified)

	// Replay must fail: the code is burned
	_, err = svc.VerifyEmail(ctx, "alice@example.com", code)
	assert.ErrorIs(t, err, store.ErrCodeUsed)
}

func TestService_VerifyEmail_WrongCode(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, "alice@example.com", "000000")
	assert.ErrorIs(t, err, store.ErrInvalidCode)
}

func TestService_VerifyEmail_NoAccountBurnsCode(t *testing.T) {
	svc, st, _ := setupTestService(t)
	ctx := context.Background()

	// The ledger accepts codes for addresses with no account
	otp, err := st.IssueOTP(ctx, "ghost@example.com", store.OTPPurposeVerification, time.Minute)
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, "ghost@example.com", otp.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The code was consumed anyway
	_, err = svc.VerifyEmail(ctx, "ghost@example.com", otp.Code)
	assert.ErrorIs(t, err, store.ErrCodeUsed)
}

func TestService_RequestVerification_UnknownEmail(t *testing.T) {
	svc, _, _ := setupTestService(t)

	err := svc.RequestVerification(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_RequestPasswordReset_UnknownEmail(t *testing.T) {
	svc, _, _ := setupTestService(t)

	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ResetPassword(t *testing.T) {
	svc, _, notifier := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "old-password", "Alice")
	require.NoError(t, err)

	require.NoError(t, svc.RequestPasswordReset(ctx, "alice@example.com"))
	code := notifier.reset["alice@example.com"]
	require.Len(t, code, 6)

	require.NoError(t, svc.ResetPassword(ctx, "alice@example.com", code, "new-password"))

	// Old password no longer works, new one does
	_, err = svc.Authenticate(ctx, "alice@example.com", "old-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "alice@example.com", "new-password")
	assert.NoError(t, err)
}

func TestService_ResetPassword_WrongCode(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "old-password", "Alice")
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, "alice@example.com", "000000", "new-password")
	assert.ErrorIs(t, err, store.ErrInvalidCode)

	// Password unchanged
	_, err = svc.Authenticate(ctx, "alice@example.com", "old-password")
	assert.NoError(t, err)
}

func TestService_ResetPassword_VerificationCodeRejected(t *testing.T) {
	svc, _, notifier := setupTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "old-password", "Alice")
	require.NoError(t, err)

	// The registration verification code must not reset a password
	code := notifier.verification["alice@example.com"]
	err = svc.ResetPassword(ctx, "alice@example.com", code, "new-password")
	assert.ErrorIs(t, err, store.ErrInvalidCode)
}

func TestService_DeleteAccount(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	alice, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "bob@example.com", "secret-password", "Bob")
	require.NoError(t, err)

	// Bob cannot delete Alice's account, and learns nothing
	err = svc.DeleteAccount(ctx, access.User(bob.ID), alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.GetUser(ctx, access.User(alice.ID), alice.ID)
	require.NoError(t, err)

	// Alice can delete herself
	require.NoError(t, svc.DeleteAccount(ctx, access.User(alice.ID), alice.ID))

	_, err = svc.GetUser(ctx, access.System(), alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Admins can delete anyone
	require.NoError(t, svc.DeleteAccount(ctx, access.System(), bob.ID))
}

func TestService_GetUser_Scoping(t *testing.T) {
	svc, _, _ := setupTestService(t)
	ctx := context.Background()

	alice, err := svc.Register(ctx, "alice@example.com", "secret-password", "Alice")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "bob@example.com", "secret-password", "Bob")
	require.NoError(t, err)

	// Owner sees their own profile
	got, err := svc.GetUser(ctx, access.User(alice.ID), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	// A foreign principal sees nothing
	_, err = svc.GetUser(ctx, access.User(bob.ID), alice.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Admin bypasses scoping
	got, err = svc.GetUser(ctx, access.System(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}
