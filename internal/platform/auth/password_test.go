package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "admin123" {
		t.Fatal("expected hash to differ from the password")
	}

	ok, err := CheckPassword(hash, "admin123")
	if err != nil || !ok {
		t.Errorf("expected match, got %v (%v)", ok, err)
	}
	ok, err = CheckPassword(hash, "wrong-pass")
	if err != nil || ok {
		t.Errorf("expected mismatch without error, got %v (%v)", ok, err)
	}
	if _, err := CheckPassword("not-a-hash", "admin123"); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestHashPassword_TooShort(t *testing.T) {
	if _, err := HashPassword("abc"); err == nil {
		t.Error("expected error for short password")
	}
}
