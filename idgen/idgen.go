// Package idgen produces the identifiers pasteup stamps on sessions and
// reports. UUIDv7 keeps them time-sortable in the upload journal.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUID strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed type prefix ("ses_", "upl_") to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Session and Upload are the generators used for session and report IDs.
var (
	Session = Prefixed("ses_", Default)
	Upload  = Prefixed("upl_", Default)
)

// New produces an ID using Default.
func New() string {
	return Default()
}
