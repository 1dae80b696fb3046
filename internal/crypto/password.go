// Package crypto holds the password hashing helpers behind account auth.
package crypto

import "golang.org/x/crypto/bcrypt"

// hashCost pins the bcrypt work factor so hashing cost never drifts silently
// between builds.
const hashCost = bcrypt.DefaultCost

// HashPassword derives a bcrypt hash from the plaintext password.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), hashCost)
}

// ComparePassword reports whether plain matches the stored hash, returning
// bcrypt's mismatch error when it does not.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
