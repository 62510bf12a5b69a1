package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)

	token, err := issuer.Generate("ops-bot", RoleOperator)
	require.NoError(t, err)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
}

func TestTokenRejected(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour)
	token, err := issuer.Generate("ops-bot", RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).Validate(token)
	assert.Error(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = issuer.Validate(token)
	assert.Error(t, err)

	_, err = issuer.Validate("not-a-token")
	assert.Error(t, err)
}
