// Package errs defines the error kinds shared by stores, the matching
// engine and the HTTP layer. Packages declare their own sentinels wrapping
// one of these kinds, so handlers can map any of them to a status code with
// errors.Is.
package errs

import "errors"

var (
	NotFound     = errors.New("not found")
	Conflict     = errors.New("conflict")
	Invalid      = errors.New("invalid request")
	Unauthorized = errors.New("unauthorized")
	Unavailable  = errors.New("unavailable")
)

// Kinded pairs a message with a kind. errors.Is(err, kind) holds.
type Kinded struct {
	Kind error
	Msg  string
}

func (e *Kinded) Error() string        { return e.Msg }
func (e *Kinded) Is(target error) bool { return target == e.Kind }

// New returns a sentinel of the given kind.
func New(kind error, msg string) error {
	return &Kinded{Kind: kind, Msg: msg}
}
