package routing

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// MatchMode selects how a Rule's key is compared against a request path.
type MatchMode int

const (
	MatchLiteral MatchMode = iota // strings.HasPrefix on the raw path
	MatchSegment                  // prefix must end on a path boundary
	MatchRegexp                   // Pattern.MatchString
)

// String returns the config spelling of the mode.
func (m MatchMode) String() string {
	switch m {
	case MatchLiteral:
		return "literal"
	case MatchSegment:
		return "segment"
	case MatchRegexp:
		return "regexp"
	default:
		return "unknown"
	}
}

// RewriteFunc maps a matched request path to the path sent upstream. It must
// be total over every path its rule matches.
type RewriteFunc func(path string) string

// Identity leaves the path unchanged.
func Identity(path string) string { return path }

// StripPrefix removes prefix from the start of the path.
func StripPrefix(prefix string) RewriteFunc {
	return func(path string) string {
		return strings.TrimPrefix(path, prefix)
	}
}

// ReplacePattern replaces the first match of re with repl, which may refer
// to capture groups as $1 or ${name}. Paths without a match are unchanged.
func ReplacePattern(re *regexp.Regexp, repl string) RewriteFunc {
	return func(path string) string {
		loc := re.FindStringSubmatchIndex(path)
		if loc == nil {
			return path
		}
		expanded := re.ExpandString(nil, repl, path, loc)
		return path[:loc[0]] + string(expanded) + path[loc[1]:]
	}
}

// Rule is one immutable proxy rule. Rules are created once at startup and
// shared read-only between requests.
type Rule struct {
	// Prefix is the configured key, e.g. "/api" or "^/legacy/.*".
	Prefix string
	// Target is the upstream origin. A non-empty Target.Path is used as a
	// base path for the rewritten request path.
	Target *url.URL
	// ChangeOrigin sets the outgoing Host header to Target.Host.
	ChangeOrigin bool
	Match        MatchMode
	// Pattern is the compiled key when Match is MatchRegexp.
	Pattern *regexp.Regexp
	// Rewrite defaults to Identity when nil.
	Rewrite RewriteFunc

	WS      bool
	Secure  bool
	Timeout time.Duration
	Headers map[string]string
	DevAuth bool
}

// Matches reports whether the rule applies to path.
func (r *Rule) Matches(path string) bool {
	switch r.Match {
	case MatchSegment:
		return MatchesPrefix(path, r.Prefix)
	case MatchRegexp:
		return r.Pattern != nil && r.Pattern.MatchString(path)
	default:
		return MatchesLiteral(path, r.Prefix)
	}
}

// rewrite applies the rule's rewrite and normalizes the result to an
// absolute path: "" becomes "/" and "key" becomes "/key".
func (r *Rule) rewrite(path string) string {
	fn := r.Rewrite
	if fn == nil {
		fn = Identity
	}
	return normalize(fn(path))
}

func normalize(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
