package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesPrefix(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"/api/users/123", "/api/users", true},
		{"/api/users", "/api/users", true},
		{"/api/", "/api/", true},
		{"/api/test", "/api/", true},
		{"/api.evil.com/steal", "/api", false},
		{"/api-extended", "/api", false},
		{"/apikey", "/api", false},
		{"/api", "/api", true},
		{"/api/test", "/api", true},
		{"/other", "/api", false},
		{"/anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+"_vs_"+tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesPrefix(tt.path, tt.prefix))
		})
	}
}

func TestMatchesLiteral(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"/api/users/1", "/api", true},
		{"/api", "/api", true},
		// Literal prefix matching is not segment aligned.
		{"/apikey", "/api", true},
		{"/aim", "/ai", true},
		{"/static/logo.png", "/api", false},
		{"/ap", "/api", false},
		{"/anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path+"_vs_"+tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesLiteral(tt.path, tt.prefix))
		})
	}
}
