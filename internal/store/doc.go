// Package store provides persistent storage for grimoire using SQLite.
//
// # Architecture
//
// A single Store interface covers the five entities and the audit trail;
// SQLiteStore implements it. Owner-scoped methods take an access.Principal
// and enforce scoping inside the query: a row the caller may not see
// behaves exactly like a missing row (ErrNotFound). Admin principals bypass
// scoping wholesale.
//
// # Data Models
//
//   - User: account with email, bcrypt hash, verified/admin flags
//   - OTP: one issued verification code; Pending until consumed, expiry is
//     a predicate over expires_at, consumed rows are terminal and retained
//   - Agent: retrieval assistant with a file manifest (source of truth)
//     and cached total_files/total_chunks counters
//   - Conversation: message thread referencing its agent by name only
//   - Message: one conversation turn, sender "user" or "bot"
//   - AuditEntry: security-relevant action record
//
// # Invariants
//
// Multi-step writes (OTP consume-and-flip, manifest changes with counter
// updates, message append/delete with message_count) run in transactions;
// the counters can never be observed divergent from the rows they cache.
// Deleting a user cascades to agents, conversations, and messages through
// foreign keys. Deleting an agent cascades nothing.
//
// # SQLite Configuration
//
// WAL journal mode, foreign keys on, busy_timeout 5s, all set via DSN
// pragmas so every pooled connection gets them. Transactions hitting lock
// contention are retried a bounded number of times.
//
// # Error Handling
//
// Sentinel errors callers match with errors.Is:
//
//   - ErrNotFound: entity absent or not visible to the caller
//   - ErrDuplicateEmail: email already registered
//   - ErrDuplicateName: owner already has an agent with the name
//   - ErrInvalidCode / ErrCodeExpired / ErrCodeUsed: OTP consumption outcomes
//   - ErrIntegrity: cached counters disagree with the manifest
//
// All methods accept context.Context for cancellation support.
//
// # Migrations
//
// Migrations are embedded and run automatically on store initialization.
// Migration files are in internal/store/migrations/ with numeric prefixes.
package store
