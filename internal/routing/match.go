// Package routing holds the pure routing decision for the development proxy:
// an ordered, immutable table of prefix rules evaluated top to bottom, with
// the first match deciding where a request goes and what its path becomes.
package routing

import "strings"

// MatchesPrefix checks if path matches prefix with boundary enforcement.
// The path must either equal the prefix, the prefix must end with "/",
// or the character after the prefix in path must be "/".
func MatchesPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	if prefix[len(prefix)-1] == '/' {
		return true
	}
	return path[len(prefix)] == '/'
}

// MatchesLiteral reports whether prefix is a literal prefix of path. Unlike
// MatchesPrefix it does not require a path boundary, so "/apikey" matches
// "/api".
func MatchesLiteral(path, prefix string) bool {
	return prefix != "" && strings.HasPrefix(path, prefix)
}
