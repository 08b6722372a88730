package playback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/video"
	"github.com/outerfields/platform/pkg/video/videotest"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	tokenCalls []time.Time
	err        error
}

func (f *fakeHost) CreatePlaybackToken(ctx context.Context, streamUID string, expiresAt time.Time) (string, error) {
	f.tokenCalls = append(f.tokenCalls, expiresAt)
	if f.err != nil {
		return "", f.err
	}
	return "signed-" + streamUID, nil
}

func (f *fakeHost) PublicHLSURL(streamUID string) string {
	return "https://customer-abc.cloudflarestream.com/" + streamUID + "/manifest/video.m3u8"
}

func (f *fakeHost) SignedHLSURL(token string) string {
	return "https://customer-abc.cloudflarestream.com/" + token + "/manifest/video.m3u8"
}

var (
	anonymous = auth.Viewer{}
	visitor   = auth.Viewer{ID: "v1", Email: "visitor@example.com"}
	member    = auth.Viewer{ID: "m1", Email: "member@example.com", Member: true}
	admin     = auth.Viewer{ID: "a1", Email: "admin@outerfields.com", Admin: true}
	fixedNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *video.Repository, *fakeHost) {
	t.Helper()
	repo, _ := videotest.NewRepository(t)
	host := &fakeHost{}
	svc := NewService(repo, host, ttl)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, host
}

func readyVideo(t *testing.T, repo *video.Repository, rec video.Record) *video.Record {
	t.Helper()
	if rec.StreamUID == nil {
		rec.StreamUID = videotest.StringPtr("uid-" + rec.Title)
	}
	if rec.IngestStatus == "" {
		rec.IngestStatus = video.StatusReady
	}
	if rec.Visibility == "" {
		rec.Visibility = video.VisibilityPublished
	}
	return videotest.SeedVideo(t, repo, rec)
}

func TestResolvePlaybackSignedGrant(t *testing.T) {
	svc, repo, host := newTestService(t, 0)
	rec := readyVideo(t, repo, video.Record{Title: "gated", Tier: video.TierGated})

	grant, err := svc.ResolvePlayback(context.Background(), rec.ID, member)
	require.NoError(t, err)
	require.Equal(t, rec.ID, grant.VideoID)
	require.Equal(t, "uid-gated", grant.StreamUID)
	require.Equal(t, fixedNow.Unix(), grant.IssuedAt)
	require.Equal(t, fixedNow.Unix()+900, grant.ExpiresAt)
	require.Equal(t, video.PolicyPrivate, grant.Policy)
	require.Equal(t, "https://customer-abc.cloudflarestream.com/signed-uid-gated/manifest/video.m3u8", grant.HLSURL)
	require.Equal(t, []time.Time{time.Unix(fixedNow.Unix()+900, 0)}, host.tokenCalls)
}

func TestResolvePlaybackPublicSkipsToken(t *testing.T) {
	svc, repo, host := newTestService(t, 60*time.Second)
	rec := readyVideo(t, repo, video.Record{Title: "open", PlaybackPolicy: video.PolicyPublic})

	grant, err := svc.ResolvePlayback(context.Background(), rec.ID, anonymous)
	require.NoError(t, err)
	require.Equal(t, "https://customer-abc.cloudflarestream.com/uid-open/manifest/video.m3u8", grant.HLSURL)
	require.Equal(t, fixedNow.Unix()+60, grant.ExpiresAt)
	require.Empty(t, host.tokenCalls)
}

func TestResolvePlaybackTierGating(t *testing.T) {
	svc, repo, _ := newTestService(t, 0)
	gated := readyVideo(t, repo, video.Record{Title: "gated", Tier: video.TierGated})
	preview := readyVideo(t, repo, video.Record{Title: "preview", Tier: video.TierPreview})

	for _, id := range []string{gated.ID, preview.ID} {
		_, err := svc.ResolvePlayback(context.Background(), id, anonymous)
		require.ErrorIs(t, err, ErrMembershipRequired)
		_, err = svc.ResolvePlayback(context.Background(), id, visitor)
		require.ErrorIs(t, err, ErrMembershipRequired)

		_, err = svc.ResolvePlayback(context.Background(), id, member)
		require.NoError(t, err)
		_, err = svc.ResolvePlayback(context.Background(), id, admin)
		require.NoError(t, err)
	}
}

func TestResolvePlaybackHidesUnpublished(t *testing.T) {
	svc, repo, _ := newTestService(t, 0)
	draft := readyVideo(t, repo, video.Record{Title: "draft", Visibility: video.VisibilityDraft})
	archived := readyVideo(t, repo, video.Record{Title: "archived", Visibility: video.VisibilityArchived})

	for _, id := range []string{draft.ID, archived.ID} {
		_, err := svc.ResolvePlayback(context.Background(), id, member)
		require.ErrorIs(t, err, ErrNotFound)

		_, err = svc.ResolvePlayback(context.Background(), id, admin)
		require.NoError(t, err)
	}

	_, err := svc.ResolvePlayback(context.Background(), "missing", admin)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolvePlaybackLegacyFallback(t *testing.T) {
	svc, repo, _ := newTestService(t, 0)
	rec := videotest.SeedVideo(t, repo, video.Record{
		Title:        "legacy",
		Visibility:   video.VisibilityPublished,
		AssetPath:    "/videos/legacy.mp4",
		IngestStatus: video.StatusReady,
	})

	_, err := svc.ResolvePlayback(context.Background(), rec.ID, anonymous)
	var legacy *LegacyError
	require.ErrorAs(t, err, &legacy)
	require.Equal(t, "/videos/legacy.mp4", legacy.AssetPath)
}

func TestResolvePlaybackNotReady(t *testing.T) {
	svc, repo, _ := newTestService(t, 0)
	processing := readyVideo(t, repo, video.Record{Title: "p", IngestStatus: video.StatusProcessing})
	failed := readyVideo(t, repo, video.Record{
		Title:         "f",
		IngestStatus:  video.StatusFailed,
		FailureReason: videotest.StringPtr("codec unsupported"),
	})

	_, err := svc.ResolvePlayback(context.Background(), processing.ID, anonymous)
	var notReady *NotReadyError
	require.ErrorAs(t, err, &notReady)
	require.Equal(t, video.StatusProcessing, notReady.IngestStatus)

	_, err = svc.ResolvePlayback(context.Background(), failed.ID, anonymous)
	require.ErrorAs(t, err, &notReady)
	require.Equal(t, video.StatusFailed, notReady.IngestStatus)
	require.Equal(t, "codec unsupported", *notReady.FailureReason)
}

func TestResolvePlaybackTokenFailure(t *testing.T) {
	svc, repo, host := newTestService(t, 0)
	host.err = errors.New("stream api down")
	rec := readyVideo(t, repo, video.Record{Title: "x"})

	_, err := svc.ResolvePlayback(context.Background(), rec.ID, anonymous)
	require.ErrorContains(t, err, "stream api down")
}

func TestPlaybackHTTPStatuses(t *testing.T) {
	svc, repo, _ := newTestService(t, 0)
	ready := readyVideo(t, repo, video.Record{Title: "ready"})
	gated := readyVideo(t, repo, video.Record{Title: "gated", Tier: video.TierGated})
	processing := readyVideo(t, repo, video.Record{Title: "proc", IngestStatus: video.StatusProcessing})
	legacy := videotest.SeedVideo(t, repo, video.Record{
		Title: "legacy", Visibility: video.VisibilityPublished, AssetPath: "/a.mp4",
	})

	router := mux.NewRouter()
	NewHTTPHandler(svc).Register(router)

	get := func(id string) (int, map[string]interface{}) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/videos/"+id+"/playback", nil))
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	code, body := get(ready.ID)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	require.True(t, strings.HasSuffix(data["hlsUrl"].(string), "/manifest/video.m3u8"))

	code, _ = get(gated.ID)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body = get(processing.ID)
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "processing", body["ingestStatus"])

	code, body = get(legacy.ID)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "/a.mp4", body["legacyAssetPath"])

	code, body = get("nope")
	require.Equal(t, http.StatusNotFound, code)
	require.NotContains(t, body, "legacyAssetPath")
}
