// Package auth provides credential primitives for grimoire.
//
// # Password Hashing
//
// Passwords are hashed with bcrypt:
//
//	hash, err := auth.HashPassword(password, cost)
//	err = auth.CheckPassword(hash, password)
//
// A cost of 0 selects bcrypt.DefaultCost. Callers that look up an account
// and miss should call DummyCompare so that unknown emails take as long to
// reject as wrong passwords; otherwise login timing reveals which emails
// are registered.
//
// # Session Tokens
//
// After a successful authenticate or email verification, the API layer
// mints a session token:
//
//	issuer := auth.NewJWTIssuer(secret)
//	token, err := issuer.Issue(userID, ttl)
//	userID, err := issuer.Verify(token)
//
// Tokens are HS256-signed JWTs carrying the user ID in the "sub" claim
// plus "iat" and "exp". Verify maps expiry to ErrExpiredToken and every
// other failure to ErrInvalidToken.
package auth
