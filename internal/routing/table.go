package routing

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/dskow/devproxy/internal/config"
)

// PassthroughName labels decisions that matched no rule in logs and metrics.
const PassthroughName = "passthrough"

// Decision is the outcome of routing one request path. A nil Rule means
// passthrough: the request goes to the default upstream untouched.
type Decision struct {
	// Rule is the matched rule. It points into the Table and must not be
	// modified.
	Rule *Rule
	// Path is the rewritten path for a forwarded request, or the original
	// path for a passthrough.
	Path string
	// RawPath is the escaped form of Path when it differs from the default
	// encoding, e.g. "/files/a%2Fb". Empty otherwise.
	RawPath string
}

// Passthrough reports whether no rule matched.
func (d Decision) Passthrough() bool {
	return d.Rule == nil
}

// Name returns the matched rule's key, or PassthroughName.
func (d Decision) Name() string {
	if d.Rule == nil {
		return PassthroughName
	}
	return d.Rule.Prefix
}

// URL returns the upstream URL for a forwarded decision with the given raw
// query appended. For a passthrough it returns a relative URL with the
// original path.
func (d Decision) URL(rawQuery string) *url.URL {
	if d.Rule == nil {
		return &url.URL{Path: d.Path, RawPath: d.RawPath, RawQuery: rawQuery}
	}
	u := *d.Rule.Target
	base := u.EscapedPath()
	u.Path = joinPath(u.Path, d.Path)
	u.RawPath = ""
	if d.RawPath != "" {
		u.RawPath = joinPath(base, d.RawPath)
	}
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + path
}

// Table is an ordered, immutable set of rules. It is safe for concurrent use.
type Table struct {
	rules []Rule
}

// NewTable returns a Table evaluating rules in the given order.
func NewTable(rules ...Rule) *Table {
	t := &Table{rules: make([]Rule, len(rules))}
	copy(t.rules, rules)
	return t
}

// Route evaluates the rules in declaration order and returns the first match
// with its rewritten path, or a passthrough decision when nothing matches.
// It has no side effects, so the same path always yields the same decision.
func (t *Table) Route(path string) Decision {
	for i := range t.rules {
		r := &t.rules[i]
		if r.Matches(path) {
			return Decision{Rule: r, Path: r.rewrite(path)}
		}
	}
	return Decision{Path: path}
}

// RouteURL routes u by its decoded path, like Route. When the request path
// carries escapes that decoding loses, such as %2F, the rewrite is applied to
// the escaped path as well and kept if it still encodes the rewritten path.
func (t *Table) RouteURL(u *url.URL) Decision {
	d := t.Route(u.Path)
	if u.RawPath == "" {
		return d
	}
	if d.Rule == nil {
		d.RawPath = u.RawPath
		return d
	}
	raw := d.Rule.rewrite(u.EscapedPath())
	if p, err := url.PathUnescape(raw); err == nil && p == d.Path {
		d.RawPath = raw
	}
	return d
}

// Rules returns a copy of the rules in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// FromConfig compiles validated proxy rule configuration into a Table.
func FromConfig(rules []config.ProxyRule) (*Table, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, rc := range rules {
		rule, err := compile(rc)
		if err != nil {
			return nil, fmt.Errorf("proxy rule %q: %w", rc.Prefix, err)
		}
		compiled = append(compiled, rule)
	}
	return NewTable(compiled...), nil
}

func compile(rc config.ProxyRule) (Rule, error) {
	target, err := url.Parse(rc.Target)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid target URL: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return Rule{}, fmt.Errorf("target scheme must be http or https, got %q", target.Scheme)
	}
	if target.Host == "" {
		return Rule{}, fmt.Errorf("target host is required")
	}

	rule := Rule{
		Prefix:       rc.Prefix,
		Target:       target,
		ChangeOrigin: rc.ChangeOrigin,
		Rewrite:      Identity,
		WS:           rc.WS,
		Secure:       rc.VerifyTLS(),
		Timeout:      rc.Timeout,
		Headers:      rc.Headers,
		DevAuth:      rc.DevAuth,
	}

	switch {
	case rc.IsPattern():
		re, err := regexp.Compile(rc.Prefix)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		rule.Match = MatchRegexp
		rule.Pattern = re
	case rc.Match == config.MatchSegment:
		rule.Match = MatchSegment
	default:
		rule.Match = MatchLiteral
	}

	switch {
	case rc.StripPrefix:
		rule.Rewrite = StripPrefix(rc.Prefix)
	case rc.Rewrite != nil:
		re, err := regexp.Compile(rc.Rewrite.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid rewrite pattern: %w", err)
		}
		rule.Rewrite = ReplacePattern(re, rc.Rewrite.Replacement)
	}

	return rule, nil
}
