// Package password provides the password hashing capability. The salt is
// embedded in the digest, so verification needs only the stored digest.
package password

import "golang.org/x/crypto/bcrypt"

// Hash derives a digest from a plaintext password.
func Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether a plaintext password matches a digest.
func Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
