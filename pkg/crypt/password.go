// Package crypt hashes and verifies account passwords.
//
// New passwords are stored as bcrypt hashes. Accounts imported from older
// MUSH databases may still carry traditional crypt(3) DES hashes, which are
// recognised and verified so they can be upgraded on next login.
package crypt

import (
	"fmt"
	"strings"

	descrypt "github.com/digitive/crypt"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("crypt: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword verifies password against a stored bcrypt or DES hash.
func CheckPassword(password, storedHash string) bool {
	if IsLegacy(storedHash) {
		return checkDES(password, storedHash)
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// IsLegacy reports whether storedHash is a crypt(3) DES hash rather than bcrypt.
func IsLegacy(storedHash string) bool {
	return len(storedHash) == 13 && !strings.HasPrefix(storedHash, "$")
}

// Crypt performs traditional Unix DES crypt(3).
func Crypt(password, salt string) string {
	result, err := descrypt.Crypt(password, salt)
	if err != nil {
		return ""
	}
	return result
}

func checkDES(password, storedHash string) bool {
	if password == "" {
		return false
	}
	computed := Crypt(password, storedHash[:2])
	return computed != "" && computed == storedHash
}
