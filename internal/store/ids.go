package store

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// newID returns a 26 character, lexically time-ordered id with 80 random bits.
func newID() string {
	return strings.ToLower(ulid.Make().String())
}
