// Package identity orchestrates account lifecycle flows for grimoire.
//
// # Flows
//
// The service combines the store's user and one-time-code operations with
// email delivery:
//
//   - Register: hash the password, create an unverified account, issue a
//     verification code, email it. The email goes out only after the user
//     row committed; a delivery failure is logged rather than returned
//     because the code can always be re-requested.
//   - Authenticate: uniform-failure login. Unknown emails and wrong
//     passwords both return ErrInvalidCredentials, and unknown emails burn
//     a dummy bcrypt comparison so the two failures take the same time.
//   - RequestVerification / RequestPasswordReset: re-issue flows. Both
//     require the account to exist; whether to mask the resulting
//     ErrNotFound from end users is the API layer's choice.
//   - VerifyEmail / ResetPassword: consume the code, then apply the state
//     change. A consumed code is burned even when the follow-up fails.
//   - DeleteAccount / GetUser: owner-or-admin guarded account access.
//
// # Auditing
//
// Security-relevant transitions append to the audit log best-effort: the
// guarded operation has already committed, so an audit failure is logged
// and swallowed rather than unwinding user-visible success.
package identity
