// Package domain contains entities without logic, just meta-data
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// MaxDisplayNameLen is counted in runes.
const MaxDisplayNameLen = 64

// ConnID identifies one live transport session.
type ConnID string

// NewConnID mints an identifier for a freshly accepted transport session.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Metadata is whatever the peer attached to its join (display name, avatar, ...).
// The relay never interprets it beyond DisplayName for logging.
type Metadata map[string]any

// DisplayName returns the "name" or "displayName" entry, trimmed and capped.
func (m Metadata) DisplayName() string {
	for _, key := range []string{"displayName", "name"} {
		if v, ok := m[key].(string); ok {
			v = strings.TrimSpace(v)
			if r := []rune(v); len(r) > MaxDisplayNameLen {
				v = strings.TrimSpace(string(r[:MaxDisplayNameLen]))
			}
			if v != "" {
				return v
			}
		}
	}
	return ""
}
