package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("test-secret")
	fixedNow   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return fixedNow }

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"exp": fixedNow.Add(30 * time.Minute).Unix(),
	}
}

func TestVerifyReturnsSubject(t *testing.T) {
	for _, id := range []int64{1, 42, 9_000_000_001} {
		issuer := NewIssuer(testSecret, 15*time.Minute, WithClock(fixedClock))
		tok, err := issuer.Issue(id)
		require.NoError(t, err)

		got, err := NewVerifier(testSecret, WithClock(fixedClock)).Verify(tok.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, id, got.SubjectID)
		assert.Equal(t, tok.AccessToken, got.Credential)
	}
}

func TestVerifyRejectsEverySingleBitFlipInSignature(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("7"))
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	v := NewVerifier(testSecret, WithClock(fixedClock))
	for i := range sig {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), sig...)
			flipped[i] ^= 1 << bit
			tampered := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(flipped)

			_, err := v.Verify(tampered)
			require.ErrorIsf(t, err, ErrSignatureInvalid, "byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	v := NewVerifier(testSecret, WithClock(fixedClock))

	cases := map[string]string{
		"expired and signed": signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "3", "exp": fixedNow.Add(-time.Second).Unix(),
		}),
		"expires exactly now": signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
			"sub": "3", "exp": fixedNow.Unix(),
		}),
		"expired with wrong key": signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{
			"sub": "3", "exp": fixedNow.Add(-time.Hour).Unix(),
		}),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.ErrorIs(t, err, ErrExpired)
		})
	}
}

func TestVerifyFailureKinds(t *testing.T) {
	v := NewVerifier(testSecret, WithClock(fixedClock))

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "", want: ErrMalformed},
		{name: "garbage", token: "not-a-token", want: ErrMalformed},
		{name: "bad segments", token: "a.b.c", want: ErrMalformed},
		{name: "missing exp", token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "1"}), want: ErrMalformed},
		{name: "wrong secret", token: signToken(t, jwt.SigningMethodHS256, []byte("nope"), validClaims("1")), want: ErrSignatureInvalid},
		{name: "wrong algorithm", token: signToken(t, jwt.SigningMethodHS512, testSecret, validClaims("1")), want: ErrSignatureInvalid},
		{name: "no subject", token: signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"exp": fixedNow.Add(time.Minute).Unix()}), want: ErrMissingSubject},
		{name: "username subject", token: signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("alice")), want: ErrMissingSubject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			require.Error(t, err)
			assert.Truef(t, errors.Is(err, tc.want), "want %v, got %v", tc.want, err)
		})
	}
}

func TestVerifyIsDeterministic(t *testing.T) {
	v := NewVerifier(testSecret, WithClock(fixedClock))
	tokens := []string{
		signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("11")),
		signToken(t, jwt.SigningMethodHS256, []byte("nope"), validClaims("11")),
		"junk",
	}

	for _, token := range tokens {
		first, firstErr := v.Verify(token)
		second, secondErr := v.Verify(token)
		assert.Equal(t, first, second)
		assert.Equal(t, firstErr, secondErr)
	}
}

func TestVerifierCopiesSecret(t *testing.T) {
	secret := []byte("mutable")
	v := NewVerifier(secret, WithClock(fixedClock))
	token := signToken(t, jwt.SigningMethodHS256, []byte("mutable"), validClaims("5"))

	secret[0] = 'X'

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id.SubjectID)
}

func TestExtractBearer(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"standard":     {header: "Bearer abc.def.ghi", token: "abc.def.ghi", ok: true},
		"lower scheme": {header: "bearer tok", token: "tok", ok: true},
		"no scheme":    {header: "tok", ok: false},
		"basic":        {header: "Basic dXNlcjpwYXNz", ok: false},
		"empty token":  {header: "Bearer   ", ok: false},
		"missing":      {header: "", ok: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			token, ok := ExtractBearer(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}
