package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	svc := NewService("test-secret", 60)

	token, err := svc.GenerateToken("user-1", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, role, err := svc.ParseAuthContext(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
	require.Equal(t, "admin", role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", 60)
	verifier := NewService("secret-b", 60)

	token, err := issuer.GenerateToken("user-1", "user")
	require.NoError(t, err)

	_, err = verifier.ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", -1)

	token, err := svc.GenerateToken("user-1", "user")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	require.Error(t, err)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", 60)
	_, err := svc.ParseToken("not-a-jwt")
	require.Error(t, err)
}
