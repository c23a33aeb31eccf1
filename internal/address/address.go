// Package address validates the opaque principal identifiers used as owners,
// delegates and recipients.
package address

import (
	"github.com/asaskevich/govalidator"
)

// MaxLength bounds an address so it fits every storage backend.
const MaxLength = 128

const pattern = `^[A-Za-z0-9][A-Za-z0-9._:\-]*$`

// Valid reports whether s is a well-formed address: printable, no spaces,
// starting with an alphanumeric character.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLength {
		return false
	}
	return govalidator.Matches(s, pattern)
}
