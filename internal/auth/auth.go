// Package auth verifies the operator credential sent with HTTP Basic.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Verifier interface {
	Verify(user, pass string) bool
}

// Static compares against a plaintext credential in constant time.
type Static struct {
	User string
	Pass string
}

func (s Static) Verify(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.Pass)) == 1
	return userOK && passOK
}

// Bcrypt checks the password against a bcrypt hash.
type Bcrypt struct {
	user string
	hash []byte
}

func NewBcrypt(user, hash string) (*Bcrypt, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return &Bcrypt{user: user, hash: []byte(hash)}, nil
}

func (b *Bcrypt) Verify(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(b.user)) == 1
	err := bcrypt.CompareHashAndPassword(b.hash, []byte(pass))
	return userOK && err == nil
}

// Hash returns a bcrypt hash of pass suitable for ADMIN_PASS_HASH.
func Hash(pass string) (string, error) {
	if pass == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}
