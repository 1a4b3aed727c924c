package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-jwt-signing-32ch"

// sign builds a token directly so tests can forge claims GenerateToken refuses.
func sign(t *testing.T, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "alice", RoleOperator, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
	assert.NotEmpty(t, claims.ID, "jti")
	assert.Equal(t, time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestGenerateToken_DefaultTTL(t *testing.T) {
	token, err := GenerateToken(testSecret, "alice", RoleViewer, 0)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, defaultTTL, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestGenerateToken_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		subject string
		role    Role
		wantErr error
	}{
		{"empty secret", "", "alice", RoleAdmin, ErrTokenInvalid},
		{"empty subject", testSecret, "", RoleAdmin, ErrTokenInvalid},
		{"unknown role", testSecret, "alice", Role("root"), ErrInvalidRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateToken(tt.secret, tt.subject, tt.role, time.Hour)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, "alice", RoleViewer, time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "a-different-secret-of-enough-length")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	signed := sign(t, jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		Role: RoleAdmin,
	})

	_, err := ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseToken_InvalidSigningMethod(t *testing.T) {
	signed := sign(t, jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: RoleAdmin,
	})

	_, err := ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_UnknownRole(t *testing.T) {
	signed := sign(t, jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: Role("root"),
	})

	_, err := ParseToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("not.a.token", testSecret)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
