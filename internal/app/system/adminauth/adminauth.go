// Package adminauth checks the shared admin password sent with admin API
// requests.
package adminauth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator reports whether a presented credential is the admin password.
type Authenticator interface {
	Authenticate(credential string) bool
}

// ErrNoCredential is returned by New when neither a hash nor a plain
// password is configured.
var ErrNoCredential = errors.New("adminauth: no admin password configured")

// Password verifies against a bcrypt hash when one is configured, otherwise
// against a plain password with a constant-time compare.
type Password struct {
	hash  []byte
	plain []byte
}

// New builds a Password. hash wins when both are set. A malformed hash is
// rejected here so misconfiguration fails at startup.
func New(hash, plain string) (*Password, error) {
	switch {
	case hash != "":
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, err
		}
		return &Password{hash: []byte(hash)}, nil
	case plain != "":
		return &Password{plain: []byte(plain)}, nil
	default:
		return nil, ErrNoCredential
	}
}

// Authenticate implements Authenticator.
func (p *Password) Authenticate(credential string) bool {
	if p == nil || credential == "" {
		return false
	}
	if p.hash != nil {
		return bcrypt.CompareHashAndPassword(p.hash, []byte(credential)) == nil
	}
	return subtle.ConstantTimeCompare(p.plain, []byte(credential)) == 1
}

// Hash returns a bcrypt hash of password for the admin_password_hash setting.
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
