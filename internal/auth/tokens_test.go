package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, 24*time.Hour)

	pair, err := m.Issue("c1", "ana@example.com")
	require.NoError(t, err)

	claims, err := m.ParseAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.CustomerID)
	assert.Equal(t, "ana@example.com", claims.Email)

	_, err = m.ParseAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token is not an access token")

	_, err = m.ParseRefresh(pair.Refresh)
	assert.NoError(t, err)
}

func TestParseRejectsExpiredAndForeign(t *testing.T) {
	m := NewTokenManager("secret", time.Minute, time.Hour)
	pair, err := m.Issue("c1", "ana@example.com")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ParseAccess(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.ParseRefresh(pair.Refresh)
	assert.NoError(t, err)

	other := NewTokenManager("other", time.Hour, time.Hour)
	_, err = other.ParseRefresh(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseAccess("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
