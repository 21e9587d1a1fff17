package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateJWT(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	userID, sessionID := uuid.New(), uuid.New()

	token, err := GenerateJWT(userID, sessionID, "ADMIN", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, "classroom", claims.Issuer)

	sid, err := claims.SessionID()
	require.NoError(t, err)
	assert.Equal(t, sessionID, sid)
}

func TestValidateJWTRejects(t *testing.T) {
	SetJWTSecret("jwt-test-secret")
	userID, sessionID := uuid.New(), uuid.New()

	expired, err := GenerateJWT(userID, sessionID, "USER", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired)
	assert.Error(t, err)

	token, err := GenerateJWT(userID, sessionID, "USER", time.Hour)
	require.NoError(t, err)
	SetJWTSecret("rotated-secret")
	_, err = ValidateJWT(token)
	assert.Error(t, err)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{UserID: userID.String()})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ValidateJWT(raw)
	assert.Error(t, err)
}

func TestStateToken(t *testing.T) {
	SetJWTSecret("jwt-test-secret")

	state, err := GenerateStateToken("KAKAO", "/learning", 10*time.Minute)
	require.NoError(t, err)

	claims, err := ValidateStateToken(state, "KAKAO")
	require.NoError(t, err)
	assert.Equal(t, "/learning", claims.Redirect)

	_, err = ValidateStateToken(state, "NAVER")
	assert.Error(t, err)
}
