package auth

import "testing"

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("pw123")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "pw123" {
		t.Fatal("hash equals the plaintext password")
	}

	if !CheckPasswordHash("pw123", hash) {
		t.Fatal("CheckPasswordHash() = false for the correct password")
	}
	if CheckPasswordHash("pw124", hash) {
		t.Fatal("CheckPasswordHash() = true for a wrong password")
	}
}
