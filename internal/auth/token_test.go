package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

var testKey = []byte("test-signing-key")

func TestIssueToken_ParseToken(t *testing.T) {
	token, err := IssueToken("user-1", testKey, time.Hour)
	assert.NoError(t, err, "expected no error issuing token")
	assert.NotEmpty(t, token, "expected token to be non-empty")

	userId, err := ParseToken(token, testKey)
	assert.NoError(t, err, "expected no error parsing token")
	assert.Equal(t, "user-1", userId, "expected user id from token")
}

func TestParseToken(t *testing.T) {
	sign := func(claims jwt.MapClaims, method jwt.SigningMethod, key any) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	tcases := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage",
			token: "not-a-token",
		},
		{
			name:  "wrong key",
			token: sign(jwt.MapClaims{userIdClaim: "user-1", expClaim: time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, []byte("other-key")),
		},
		{
			name:  "expired",
			token: sign(jwt.MapClaims{userIdClaim: "user-1", expClaim: time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256, testKey),
		},
		{
			name:  "missing exp",
			token: sign(jwt.MapClaims{userIdClaim: "user-1"}, jwt.SigningMethodHS256, testKey),
		},
		{
			name:  "missing user id",
			token: sign(jwt.MapClaims{expClaim: time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, testKey),
		},
		{
			name:  "numeric user id",
			token: sign(jwt.MapClaims{userIdClaim: 42, expClaim: time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodHS256, testKey),
		},
		{
			name:  "none algorithm",
			token: sign(jwt.MapClaims{userIdClaim: "user-1", expClaim: time.Now().Add(time.Hour).Unix()}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, err := ParseToken(tc.token, testKey)
			assert.Error(t, err, "expected error parsing token")
			assert.Empty(t, userId, "expected no user id")
		})
	}
}
