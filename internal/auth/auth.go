// Package auth mints the development bearer tokens injected on dev_auth
// proxy rules, so a backend that requires a JWT can be called from a
// browser session that never logged in.
package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dskow/devproxy/internal/config"
)

// ErrNoSecret is returned when dev_auth.secret is empty.
var ErrNoSecret = errors.New("dev_auth.secret is not configured")

// Claims are the claims carried by a dev token.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Minter issues HS256 tokens and caches the current one until it is close
// to expiry. It is safe for concurrent use.
type Minter struct {
	cfg    config.DevAuthConfig
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewMinter creates a Minter from the dev_auth section.
func NewMinter(cfg config.DevAuthConfig) (*Minter, error) {
	if cfg.Secret == "" {
		return nil, ErrNoSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Minter{cfg: cfg, secret: []byte(cfg.Secret), now: time.Now}, nil
}

// renewWindow is how long before expiry a cached token is replaced.
func (m *Minter) renewWindow() time.Duration {
	w := m.cfg.TTL / 10
	if w > time.Minute {
		w = time.Minute
	}
	return w
}

// Token returns a valid token, minting a new one when the cached token is
// missing or about to expire.
func (m *Minter) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.token != "" && now.Add(m.renewWindow()).Before(m.expires) {
		return m.token, nil
	}

	token, expires, err := m.mint(now)
	if err != nil {
		return "", err
	}
	m.token, m.expires = token, expires
	return token, nil
}

func (m *Minter) mint(now time.Time) (string, time.Time, error) {
	expires := now.Add(m.cfg.TTL)
	claims := Claims{
		Scope: strings.Join(m.cfg.Scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.cfg.Subject,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies a token signed with secret and returns its claims. The
// CLI uses it to show what a backend will receive.
func Parse(token, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
