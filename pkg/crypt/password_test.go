package crypt

import (
	"testing"
)

func TestHashAndCheck(t *testing.T) {
	hash, err := HashPassword("testpassword")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if IsLegacy(hash) {
		t.Errorf("bcrypt hash %q detected as legacy", hash)
	}
	if !CheckPassword("testpassword", hash) {
		t.Error("CheckPassword rejected the right password")
	}
	if CheckPassword("newpassword", hash) {
		t.Error("CheckPassword accepted the wrong password")
	}
}

func TestLegacyDES(t *testing.T) {
	salts := []string{"XX", "ab", "Ax", "..", "//"}
	for _, salt := range salts {
		hash := Crypt("mushpassword", salt)
		if len(hash) != 13 || hash[:2] != salt {
			t.Fatalf("Crypt(_, %q) = %q, want 13 chars starting with the salt", salt, hash)
		}
		if !IsLegacy(hash) {
			t.Errorf("%q not detected as legacy", hash)
		}
		if !CheckPassword("mushpassword", hash) {
			t.Errorf("legacy hash with salt %q did not verify", salt)
		}
		if CheckPassword("wrong", hash) {
			t.Errorf("legacy hash with salt %q accepted a wrong password", salt)
		}
	}
}

func TestLegacyEmptyPassword(t *testing.T) {
	hash := Crypt("secret", "XX")
	if CheckPassword("", hash) {
		t.Error("empty password verified against a legacy hash")
	}
}
