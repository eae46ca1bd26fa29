package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	require.NoError(t, err)

	_, err = AcquireLock(dir)
	assert.True(t, errors.Is(err, ErrAlreadyLocked))

	require.NoError(t, first.Release())

	second, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestTokenAuthRoundTrip(t *testing.T) {
	dir := t.TempDir()
	auth, token, err := NewTokenAuth(dir + "/token.hash")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, auth.Verify(token))
	assert.Error(t, auth.Verify("wrong-token"))

	loaded, err := LoadTokenAuth(dir + "/token.hash")
	require.NoError(t, err)
	assert.NoError(t, loaded.Verify(token))
}
