package adminauth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPlainPassword(t *testing.T) {
	p, err := New("", "s3cret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Authenticate("s3cret") {
		t.Error("expected correct password to authenticate")
	}
	if p.Authenticate("S3cret") || p.Authenticate("") {
		t.Error("expected wrong password to fail")
	}
}

func TestHashedPassword(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	p, err := New(string(h), "ignored")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !p.Authenticate("s3cret") {
		t.Error("expected hashed password to authenticate")
	}
	if p.Authenticate("ignored") {
		t.Error("plain password should be ignored when a hash is set")
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New("", ""); !errors.Is(err, ErrNoCredential) {
		t.Errorf("New(\"\", \"\") err = %v, want ErrNoCredential", err)
	}
	if _, err := New("not-a-bcrypt-hash", ""); err == nil {
		t.Error("expected malformed hash to be rejected")
	}
}

func TestNilPassword(t *testing.T) {
	var p *Password
	if p.Authenticate("anything") {
		t.Error("nil Password must not authenticate")
	}
}
