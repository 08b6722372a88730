package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadPlaybackTTL(t *testing.T) {
	t.Setenv("VIDEO_STREAM_TOKEN_TTL_SECONDS", "")
	require.Equal(t, 900*time.Second, Load().PlaybackTokenTTL)

	t.Setenv("VIDEO_STREAM_TOKEN_TTL_SECONDS", "120")
	require.Equal(t, 120*time.Second, Load().PlaybackTokenTTL)

	t.Setenv("VIDEO_STREAM_TOKEN_TTL_SECONDS", "-5")
	require.Equal(t, 900*time.Second, Load().PlaybackTokenTTL)

	t.Setenv("VIDEO_STREAM_TOKEN_TTL_SECONDS", "soon")
	require.Equal(t, 900*time.Second, Load().PlaybackTokenTTL)
}

func TestLoadAdminEmailsFallback(t *testing.T) {
	t.Setenv("VIDEO_ADMIN_EMAILS", "")
	t.Setenv("VIDEO_SERIES_ADMIN_EMAILS", "ops@example.com, ")
	require.Equal(t, []string{"ops@example.com"}, Load().AdminEmails)

	t.Setenv("VIDEO_ADMIN_EMAILS", "a@example.com,b@example.com")
	require.Equal(t, []string{"a@example.com", "b@example.com"}, Load().AdminEmails)
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Setenv("CLOUDFLARE_STREAM_ALLOWED_ORIGINS", "outerfields.com, www.outerfields.com,,")
	require.Equal(t, []string{"outerfields.com", "www.outerfields.com"}, Load().StreamAllowedOrigins)
}
