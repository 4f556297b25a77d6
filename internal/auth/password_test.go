package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "password123" {
		t.Fatal("hash must not equal the plaintext password")
	}

	if err := CheckPassword("password123", hash); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
	if err := CheckPassword("wrong-password", hash); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password must differ (random salt)")
	}
}
