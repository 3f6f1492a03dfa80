package routing

import (
	"strings"
	"testing"
)

func FuzzMatchesPrefix(f *testing.F) {
	f.Add("/api/users/123", "/api/users")
	f.Add("/api.evil.com/steal", "/api")
	f.Add("/apikey", "/api")
	f.Add("", "")
	f.Add("/", "/")
	f.Add("/api", "/api")
	f.Add("/api/", "/api/")
	f.Add("/api-extended", "/api")

	f.Fuzz(func(t *testing.T, path, prefix string) {
		result := MatchesPrefix(path, prefix)

		// Boundary enforcement: prefix ends with '/' OR path[len(prefix)] == '/'.
		if result && len(path) > len(prefix) && len(prefix) > 0 {
			if prefix[len(prefix)-1] != '/' && path[len(prefix)] != '/' {
				t.Errorf("MatchesPrefix(%q, %q) = true but boundary not enforced", path, prefix)
			}
		}
		// Segment matches are a subset of literal matches.
		if result && !MatchesLiteral(path, prefix) {
			t.Errorf("MatchesPrefix(%q, %q) matched but MatchesLiteral did not", path, prefix)
		}
	})
}

func FuzzStripPrefix(f *testing.F) {
	f.Add("/api/users/1", "/api")
	f.Add("/api", "/api")
	f.Add("/apikey", "/api")
	f.Add("/", "/")

	f.Fuzz(func(t *testing.T, path, prefix string) {
		if !MatchesLiteral(path, prefix) {
			return
		}
		// Rewrites are total over matching paths and always yield an
		// absolute path.
		got := normalize(StripPrefix(prefix)(path))
		if !strings.HasPrefix(got, "/") {
			t.Errorf("StripPrefix(%q)(%q) = %q, want leading slash", prefix, path, got)
		}
	})
}
