// ABOUTME: Principal identity and the ownership predicate used for row scoping
// ABOUTME: Every store read/write on owned data is checked against a Principal

package access

// Principal identifies the caller of a store or service operation.
// Interface layers construct one after authenticating a request; internal
// jobs use System().
type Principal struct {
	UserID string // UUID of the authenticated user, empty for system callers
	Admin  bool   // admins and system callers bypass ownership checks
}

// User returns a principal for a regular authenticated user.
func User(userID string) Principal {
	return Principal{UserID: userID}
}

// System returns the principal used by internal jobs and operator tooling.
// It passes every ownership check.
func System() Principal {
	return Principal{Admin: true}
}

// CanAccess reports whether the principal may touch a row owned by ownerID.
// Admins may touch anything; everyone else only their own rows.
func (p Principal) CanAccess(ownerID string) bool {
	if p.Admin {
		return true
	}
	return p.UserID != "" && p.UserID == ownerID
}
