// Package access defines the principal model and the ownership predicate
// that scopes every tenant-owned row in the store.
//
// # Principals
//
// A Principal is either a regular user (UserID set, Admin false), an admin
// user (both set), or the system principal used by operator tooling and
// background jobs (System(), Admin true with no UserID).
//
// # One Enforcement Point
//
// Ownership is enforced inside the store: every query over agents,
// conversations, and messages carries the owner filter derived from the
// principal, so a row belonging to someone else behaves exactly like a row
// that does not exist. Callers never see "forbidden" for rows they cannot
// reach, only "not found", which keeps resource existence private across
// tenants. Admins and the system principal bypass the filter.
//
// Services and interface layers use CanAccess only for pre-checks on data
// they already hold; the store remains the authority.
//
// # Context Propagation
//
// Interface layers attach the authenticated principal with WithPrincipal
// and recover it with FromContext/MustFromContext. Store and service APIs
// take the principal explicitly, so context propagation is a convenience
// for transport code, not a hidden dependency.
package access
