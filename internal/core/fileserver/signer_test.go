package fileserver

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignerRoundTrip(t *testing.T) {
	s := NewSigner("test-secret")

	token := s.Sign("job-1", "compressed/abc/clip_compressed.mp4", "user-1", time.Now().Add(time.Hour))

	jobID, storageKey, userID, err := s.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "job-1", jobID)
	require.Equal(t, "compressed/abc/clip_compressed.mp4", storageKey)
	require.Equal(t, "user-1", userID)
}

func TestSignerRejectsTampered(t *testing.T) {
	s := NewSigner("test-secret")
	token := s.Sign("job-1", "compressed/abc/out.mp4", "user-1", time.Now().Add(time.Hour))

	_, _, _, err := s.Verify(token[:len(token)-2] + "xx")
	require.Error(t, err)

	_, _, _, err = s.Verify("not-a-token")
	require.Error(t, err)
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner("test-secret")
	token := s.Sign("job-1", "compressed/abc/out.mp4", "user-1", time.Now().Add(-time.Minute))

	_, _, _, err := s.Verify(token)
	require.ErrorContains(t, err, "expired")
}

func TestSignerRejectsForeignSecret(t *testing.T) {
	token := NewSigner("secret-a").Sign("job-1", "k", "u", time.Now().Add(time.Hour))

	_, _, _, err := NewSigner("secret-b").Verify(token)
	require.Error(t, err)
}

func TestNewShareToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := NewShareToken()
		require.NotEmpty(t, tok)
		require.False(t, seen[tok], "tokens must not repeat")
		require.False(t, strings.ContainsAny(tok, "+/="), "tokens must be URL-safe")
		seen[tok] = true
	}
}
