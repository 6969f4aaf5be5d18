package jwtutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	token, err := Sign("secret", "xconfess", "u1", "user", time.Minute)
	require.NoError(t, err)

	v := NewVerifier("secret", "xconfess")
	claims, err := v.ParseAndValidate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "user", claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Sign("secret", "xconfess", "u1", "user", time.Minute)
	require.NoError(t, err)

	v := NewVerifier("other-secret", "xconfess")
	_, err = v.ParseAndValidate(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	token, err := Sign("secret", "someone-else", "u1", "user", time.Minute)
	require.NoError(t, err)

	v := NewVerifier("secret", "xconfess")
	_, err = v.ParseAndValidate(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	token, err := Sign("secret", "xconfess", "u1", "user", -time.Minute)
	require.NoError(t, err)

	v := NewVerifier("secret", "xconfess")
	_, err = v.ParseAndValidate(token)
	assert.Error(t, err)
}
