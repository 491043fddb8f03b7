// Package utils provides small, generic helpers shared by the HTTP layer.
// They carry no domain logic.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// does not parse. Surrounding whitespace is not trimmed.
//
//	utils.AtoiDefault("42", 0) // 42
//	utils.AtoiDefault("", 10)  // 10
//	utils.AtoiDefault("x", 5)  // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
