package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	token, err := Issue("secret", "acc-1", "ada", time.Hour)
	require.NoError(t, err)

	accountID, err := Parse("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", accountID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := Issue("secret", "acc-1", "ada", time.Hour)
	require.NoError(t, err)

	_, err = Parse("other", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := Issue("secret", "acc-1", "ada", -time.Minute)
	require.NoError(t, err)

	_, err = Parse("secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
