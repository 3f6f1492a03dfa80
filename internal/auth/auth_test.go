package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskow/devproxy/internal/config"
)

func testConfig() config.DevAuthConfig {
	return config.DevAuthConfig{
		Secret:   "dev-secret",
		Issuer:   "devproxy",
		Audience: "backend",
		Subject:  "dev-user",
		Scopes:   []string{"read", "write"},
		TTL:      time.Hour,
	}
}

func TestNewMinter_RequiresSecret(t *testing.T) {
	_, err := NewMinter(config.DevAuthConfig{})
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestToken_Claims(t *testing.T) {
	m, err := NewMinter(testConfig())
	require.NoError(t, err)

	token, err := m.Token()
	require.NoError(t, err)

	claims, err := Parse(token, "dev-secret")
	require.NoError(t, err)
	assert.Equal(t, "dev-user", claims.Subject)
	assert.Equal(t, "devproxy", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"backend"}, claims.Audience)
	assert.Equal(t, "read write", claims.Scope)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	m, err := NewMinter(testConfig())
	require.NoError(t, err)
	token, err := m.Token()
	require.NoError(t, err)

	_, err = Parse(token, "other-secret")
	assert.ErrorIs(t, err, jwt.ErrSignatureInvalid)
}

func TestToken_CachedUntilRenewWindow(t *testing.T) {
	m, err := NewMinter(testConfig())
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	first, err := m.Token()
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	second, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Inside the last minute before expiry a fresh token is minted.
	now = now.Add(29*time.Minute + 30*time.Second)
	third, err := m.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func TestToken_ShortTTLRenewWindow(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 10 * time.Second
	m, err := NewMinter(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Second, m.renewWindow())
}

func TestToken_Concurrent(t *testing.T) {
	m, err := NewMinter(testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	tokens := make([]string, 16)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], _ = m.Token()
		}(i)
	}
	wg.Wait()

	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestParse_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "x"}).SignedString([]byte("dev-secret"))
	require.NoError(t, err)

	_, err = Parse(token, "dev-secret")
	assert.Error(t, err)
}
