package domain

import (
	"strings"
)

// NormalizeUsername canonicalizes a remote username for storage and lookup:
// trims surrounding whitespace and lowercases. The remote service treats
// usernames case-insensitively, so different spellings of one account must
// collapse to a single tracked row.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
