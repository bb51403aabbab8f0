package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueEncodesNumericSubjectAndExpiry(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute, WithClock(fixedClock))

	tok, err := issuer.Issue(12)
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)

	var claims jwt.RegisteredClaims
	_, err = jwt.NewParser(jwt.WithTimeFunc(fixedClock)).ParseWithClaims(tok.AccessToken, &claims, func(*jwt.Token) (any, error) {
		return testSecret, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "12", claims.Subject)
	assert.Equal(t, fixedNow.Add(30*time.Minute), claims.ExpiresAt.Time.UTC())
}

func TestIssuedTokenExpiresForVerifier(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute, WithClock(fixedClock))
	tok, err := issuer.Issue(3)
	require.NoError(t, err)

	later := func() time.Time { return fixedNow.Add(2 * time.Minute) }
	_, err = NewVerifier(testSecret, WithClock(later)).Verify(tok.AccessToken)
	require.ErrorIs(t, err, ErrExpired)
}
