package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. A malformed hash
// is an error; a mismatch is not.
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare password: %w", err)
	}
	return true, nil
}

// dummyHash is a valid bcrypt hash no password is expected to match.
var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("shoplist-dummy-password")
	if err != nil {
		panic(err)
	}
	return hash
})

// CheckDummyPassword spends the same bcrypt work as CheckPassword without
// a real hash. Login calls it for unknown usernames so a miss takes as
// long as a wrong password.
func CheckDummyPassword(password string) {
	_, _ = CheckPassword(dummyHash(), password)
}
