package config

import (
	"strings"
	"testing"
)

func FuzzLoadFromBytes(f *testing.F) {
	f.Add([]byte(`
server:
  proxy:
    /api:
      target: "http://localhost:8080"
      change_origin: true
      strip_prefix: true
`))
	f.Add([]byte(`
server:
  port: 3000
  proxy:
    "^/fallback/.*":
      target: "https://backend:3000"
      rewrite: { pattern: "^/fallback", replacement: "" }
    /ai: "http://localhost:8000"
`))

	f.Add([]byte(``))
	f.Add([]byte(`server: { proxy: [] }`))
	f.Add([]byte(`server: { port: 0 }`))
	f.Add([]byte(`server: { proxy: { "/": "http://localhost:1" } }`))

	f.Fuzz(func(t *testing.T, data []byte) {
		// LoadFromBytes must never panic regardless of input.
		cfg, err := LoadFromBytes(data)
		if err != nil {
			return
		}
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			t.Errorf("invalid port escaped validation: %d", cfg.Server.Port)
		}
		for _, r := range cfg.Server.Proxy {
			if !strings.HasPrefix(r.Prefix, "/") && !strings.HasPrefix(r.Prefix, "^") {
				t.Errorf("invalid prefix escaped validation: %q", r.Prefix)
			}
			if r.StripPrefix && r.Rewrite != nil {
				t.Errorf("conflicting rewrite escaped validation for %q", r.Prefix)
			}
		}
	})
}
