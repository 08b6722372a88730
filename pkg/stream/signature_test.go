package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func fixedVerifier(at time.Time) *Verifier {
	v := NewVerifier(testSecret)
	v.now = func() time.Time { return at }
	return v
}

func TestVerifyAcceptsFreshSignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"uid":"abc","readyToStream":true}`)
	header := SignatureHeaderValue(testSecret, now.Add(-30*time.Second), body)

	require.True(t, fixedVerifier(now).Verify(header, body))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"uid":"abc","readyToStream":true}`)
	header := SignatureHeaderValue(testSecret, now, body)
	v := fixedVerifier(now)

	for i := range body {
		tampered := append([]byte(nil), body...)
		tampered[i] ^= 0x01
		require.False(t, v.Verify(header, tampered), "byte %d", i)
	}
}

func TestVerifyRejectsReformattedJSON(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"uid":"abc", "readyToStream":true}`)
	header := SignatureHeaderValue(testSecret, now, body)

	require.False(t, fixedVerifier(now).Verify(header, []byte(`{"uid":"abc","readyToStream":true}`)))
}

func TestVerifyReplayWindow(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{}`)
	v := fixedVerifier(now)

	require.True(t, v.Verify(SignatureHeaderValue(testSecret, now.Add(-300*time.Second), body), body))
	require.False(t, v.Verify(SignatureHeaderValue(testSecret, now.Add(-301*time.Second), body), body))
	require.True(t, v.Verify(SignatureHeaderValue(testSecret, now.Add(300*time.Second), body), body))
	require.False(t, v.Verify(SignatureHeaderValue(testSecret, now.Add(301*time.Second), body), body))
}

func TestVerifyFailsClosed(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{}`)
	good := Sign([]byte(testSecret), now.Unix(), body)
	v := fixedVerifier(now)

	cases := map[string]string{
		"empty":        "",
		"no time":      "sig1=" + good,
		"no sig":       "time=1760000000",
		"bad time":     "time=yesterday,sig1=" + good,
		"truncated":    "time=1760000000,sig1=" + good[:10],
		"wrong secret": SignatureHeaderValue("other", now, body),
		"garbage":      ",,,=,",
	}
	for name, header := range cases {
		require.False(t, v.Verify(header, body), name)
	}

	require.False(t, NewVerifier("").Verify("time=1760000000,sig1="+good, body))
}

func TestVerifyAcceptsUppercaseHexAndExtraKeys(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	body := []byte(`{"uid":"x"}`)
	sig := Sign([]byte(testSecret), now.Unix(), body)
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
		}
	}

	header := " time=1760000000 , v0=ignored, sig1=" + string(upper)
	require.True(t, fixedVerifier(now).Verify(header, body))
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, constantTimeEqual("abc", "abc"))
	require.False(t, constantTimeEqual("abc", "abd"))
	require.False(t, constantTimeEqual("abc", "ab"))
	require.True(t, constantTimeEqual("", ""))
}
