package auth

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrNotAdmin = errors.New("admin token rejected")

// AdminCheck compares presented admin tokens with a bcrypt hash. An empty
// hash disables admin access entirely.
type AdminCheck struct {
	hash []byte
}

func NewAdminCheck(hash string) AdminCheck {
	return AdminCheck{hash: []byte(strings.TrimSpace(hash))}
}

func (a AdminCheck) Enabled() bool { return len(a.hash) > 0 }

func (a AdminCheck) Verify(token string) error {
	if !a.Enabled() || strings.TrimSpace(token) == "" {
		return ErrNotAdmin
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrNotAdmin
	}
	return nil
}

// HashAdminToken produces the value stored in admin_token_hash.
func HashAdminToken(token string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
