// ABOUTME: Unit tests for bcrypt password hashing and verification
// ABOUTME: Tests hash round-trips, mismatches, and cost selection

package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 0)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if hash == "" {
		t.Fatal("HashPassword() returned empty hash")
	}
	if hash == "correct horse battery staple" {
		t.Fatal("HashPassword() returned the plaintext")
	}

	if err := CheckPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("CheckPassword() error = %v, want nil", err)
	}
}

func TestHashPassword_DistinctHashes(t *testing.T) {
	// bcrypt salts, so the same password never hashes twice to the same value
	h1, err := HashPassword("same-password", 0)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	h2, err := HashPassword("same-password", 0)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if h1 == h2 {
		t.Error("HashPassword() produced identical hashes for the same input")
	}
}

func TestHashPassword_CustomCost(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost() error = %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("Cost() = %d, want %d", cost, bcrypt.MinCost)
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	// bcrypt rejects passwords over 72 bytes
	_, err := HashPassword(strings.Repeat("x", 100), 0)
	if err == nil {
		t.Error("HashPassword() should have returned an error for oversized input")
	}
}

func TestCheckPassword_Mismatch(t *testing.T) {
	hash, err := HashPassword("right-password", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	err = CheckPassword(hash, "wrong-password")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("CheckPassword() error = %v, want ErrPasswordMismatch", err)
	}
}

func TestCheckPassword_GarbageHash(t *testing.T) {
	err := CheckPassword("not-a-bcrypt-hash", "anything")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("CheckPassword() error = %v, want ErrPasswordMismatch", err)
	}
}

func TestDummyCompare(t *testing.T) {
	// Only contract: it must not panic and must not accept anything
	DummyCompare("")
	DummyCompare("some-candidate-password")
}
