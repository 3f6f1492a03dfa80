package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Match modes for proxy rule keys.
const (
	MatchLiteral = "literal" // plain strings.HasPrefix
	MatchSegment = "segment" // prefix must end on a path boundary
	MatchRegexp  = "regexp"  // key starting with "^" is a regular expression
)

// ProxyRule is one entry of server.proxy. Prefix is the mapping key.
type ProxyRule struct {
	Prefix       string            `yaml:"-" json:"prefix"`
	Target       string            `yaml:"target" json:"target"`
	ChangeOrigin bool              `yaml:"change_origin" json:"change_origin"`
	StripPrefix  bool              `yaml:"strip_prefix" json:"strip_prefix"`
	Rewrite      *RewriteConfig    `yaml:"rewrite" json:"rewrite,omitempty"`
	Match        string            `yaml:"match" json:"match"`
	WS           bool              `yaml:"ws" json:"ws"`
	Secure       *bool             `yaml:"secure" json:"secure"`
	Timeout      time.Duration     `yaml:"timeout" json:"timeout"`
	Headers      map[string]string `yaml:"headers" json:"headers,omitempty"`
	DevAuth      bool              `yaml:"dev_auth" json:"dev_auth"`
}

// RewriteConfig replaces the first match of Pattern in the request path
// with Replacement (regexp.Expand syntax, e.g. "$1").
type RewriteConfig struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// IsPattern reports whether the rule key is a regular expression.
func (r ProxyRule) IsPattern() bool {
	return strings.HasPrefix(r.Prefix, "^")
}

// VerifyTLS reports whether upstream certificates are verified (defaults to true).
func (r ProxyRule) VerifyTLS() bool {
	if r.Secure == nil {
		return true
	}
	return *r.Secure
}

func (r ProxyRule) validate() error {
	if r.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if r.IsPattern() {
		if _, err := regexp.Compile(r.Prefix); err != nil {
			return fmt.Errorf("invalid pattern key: %w", err)
		}
		if r.Match != MatchRegexp {
			return fmt.Errorf("match %q cannot be used with a pattern key", r.Match)
		}
		if r.StripPrefix {
			return fmt.Errorf("strip_prefix cannot be used with a pattern key; use rewrite")
		}
	} else {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("prefix must start with / (or ^ for a pattern)")
		}
		if r.Match != MatchLiteral && r.Match != MatchSegment {
			return fmt.Errorf("match must be %q or %q, got %q", MatchLiteral, MatchSegment, r.Match)
		}
	}

	if r.Target == "" {
		return fmt.Errorf("target is required")
	}
	if err := validateTarget(r.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}

	if r.StripPrefix && r.Rewrite != nil {
		return fmt.Errorf("strip_prefix and rewrite are mutually exclusive")
	}
	if r.Rewrite != nil {
		if r.Rewrite.Pattern == "" {
			return fmt.Errorf("rewrite.pattern is required")
		}
		if _, err := regexp.Compile(r.Rewrite.Pattern); err != nil {
			return fmt.Errorf("rewrite.pattern: %w", err)
		}
	}
	if r.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	return nil
}

// ProxyRules is the ordered rule list. In YAML it is a mapping from prefix
// to rule body; the mapping's key order is the evaluation order, so it is
// decoded from the node tree rather than into a Go map.
type ProxyRules []ProxyRule

// UnmarshalYAML implements yaml.Unmarshaler. A scalar body is shorthand for
// {target: <value>}.
func (p *ProxyRules) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		*p = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: server.proxy must be a mapping of prefix to rule", value.Line)
	}

	rules := make(ProxyRules, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, body := value.Content[i], value.Content[i+1]

		var rule ProxyRule
		if body.Kind == yaml.ScalarNode {
			rule.Target = body.Value
		} else if err := body.Decode(&rule); err != nil {
			return fmt.Errorf("server.proxy[%q]: %w", key.Value, err)
		}
		rule.Prefix = key.Value
		rules = append(rules, rule)
	}

	*p = rules
	return nil
}
