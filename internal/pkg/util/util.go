package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewKey returns an opaque, externally referenceable key such as
// "ORD-2b1c...". Keys are never parsed back.
func NewKey(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
