package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/admin"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/video"
	"github.com/outerfields/platform/pkg/video/videotest"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) admin.Patch {
	t.Helper()
	p, err := admin.DecodePatch([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestDecodePatch(t *testing.T) {
	p := decode(t, `{"title":"  New  ","visibility":"published","is_featured":1,"featured_order":-3.7,"episode_number":null,"unknown":true}`)
	require.Equal(t, "New", *p.Title)
	require.Equal(t, video.VisibilityPublished, *p.Visibility)
	require.True(t, *p.IsFeatured)
	require.Equal(t, 0, *p.FeaturedOrder)
	require.True(t, p.ClearEpisode)

	p = decode(t, `{"title":"   ","episode_number":4.9}`)
	require.Nil(t, p.Title)
	require.Equal(t, 4, *p.EpisodeNumber)
	require.True(t, decode(t, `{}`).Empty())

	for _, raw := range []string{
		`{"visibility":"hidden"}`,
		`{"tier":"vip"}`,
		`{"playback_policy":null}`,
		`{"episode_number":"3"}`,
		`{"is_featured":"yes"}`,
		`{"is_featured":2}`,
		`{"featured_order":null}`,
		`not json`,
	} {
		_, err := admin.DecodePatch([]byte(raw))
		require.True(t, admin.IsValidationError(err), raw)
	}
}

func TestUpdateRejectsPublishingUnreadyStreamVideo(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	svc := admin.NewService(repo, nil)
	rec := videotest.SeedVideo(t, repo, video.Record{
		StreamUID:    videotest.StringPtr("uid-1"),
		IngestStatus: video.StatusProcessing,
	})

	_, err := svc.Update(context.Background(), rec.ID, decode(t, `{"visibility":"published"}`), "admin@outerfields.com")
	var notReady *admin.PublishNotReadyError
	require.ErrorAs(t, err, &notReady)
	require.ErrorIs(t, err, video.ErrPublishNotReady)
	require.Equal(t, video.StatusProcessing, notReady.IngestStatus)

	_, err = repo.ApplyWebhook(context.Background(), video.WebhookUpdate{StreamUID: "uid-1", Status: video.StatusReady})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), rec.ID, decode(t, `{"visibility":"published"}`), "admin@outerfields.com")
	require.NoError(t, err)
	require.Equal(t, video.VisibilityPublished, updated.Visibility)
}

func TestUpdateLegacyVideoCanPublish(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	svc := admin.NewService(repo, nil)
	rec := videotest.SeedVideo(t, repo, video.Record{AssetPath: "/a.mp4"})

	updated, err := svc.Update(context.Background(), rec.ID, decode(t, `{"visibility":"published"}`), "a")
	require.NoError(t, err)
	require.Equal(t, video.VisibilityPublished, updated.Visibility)
}

func TestUpdateFeaturedRules(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	svc := admin.NewService(repo, nil)
	draft := videotest.SeedVideo(t, repo, video.Record{})
	published := videotest.SeedVideo(t, repo, video.Record{Visibility: video.VisibilityPublished})

	_, err := svc.Update(context.Background(), draft.ID, decode(t, `{"is_featured":true}`), "a")
	require.ErrorIs(t, err, video.ErrFeatureNeedsPublish)

	rec, err := svc.Update(context.Background(), published.ID, decode(t, `{"is_featured":true,"featured_order":3}`), "a")
	require.NoError(t, err)
	require.True(t, rec.IsFeatured)
	require.Equal(t, 3, rec.FeaturedOrder)

	rec, err = svc.Update(context.Background(), published.ID, decode(t, `{"visibility":"draft"}`), "a")
	require.NoError(t, err)
	require.False(t, rec.IsFeatured)
	require.Zero(t, rec.FeaturedOrder)
}

func TestUpdateSeriesRederivesCategory(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	svc := admin.NewService(repo, nil)
	series := videotest.SeedSeries(t, repo, "the-long-road", "The Long Road")
	rec := videotest.SeedVideo(t, repo, video.Record{Category: "old"})

	updated, err := svc.Update(context.Background(), rec.ID, decode(t, `{"series_id":"`+series.ID+`","description":"  "}`), "a")
	require.NoError(t, err)
	require.Equal(t, series.ID, *updated.SeriesID)
	require.Equal(t, "the-long-road", updated.Category)
	require.Nil(t, updated.Description)

	_, err = svc.Update(context.Background(), rec.ID, decode(t, `{"series_id":"missing"}`), "a")
	require.ErrorIs(t, err, video.ErrSeriesNotFound)

	updated, err = svc.Update(context.Background(), rec.ID, decode(t, `{"series_id":""}`), "a")
	require.NoError(t, err)
	require.Nil(t, updated.SeriesID)
}

func TestArchiveClearsFeatured(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	svc := admin.NewService(repo, nil)
	rec := videotest.SeedVideo(t, repo, video.Record{
		Visibility:    video.VisibilityPublished,
		IsFeatured:    true,
		FeaturedOrder: 2,
	})

	archived, err := svc.Archive(context.Background(), rec.ID, "a")
	require.NoError(t, err)
	require.Equal(t, video.VisibilityArchived, archived.Visibility)
	require.False(t, archived.IsFeatured)
	require.Zero(t, archived.FeaturedOrder)

	_, err = svc.Archive(context.Background(), "missing", "a")
	require.ErrorIs(t, err, video.ErrNotFound)
}

func TestAdminHTTP(t *testing.T) {
	repo, _ := videotest.NewRepository(t)
	processing := videotest.SeedVideo(t, repo, video.Record{
		Title:        "Processing Episode",
		StreamUID:    videotest.StringPtr("uid-p"),
		IngestStatus: video.StatusProcessing,
	})
	videotest.SeedVideo(t, repo, video.Record{Title: "Other", Visibility: video.VisibilityPublished})

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-Admin") == "1" {
				r = r.WithContext(auth.WithViewer(r.Context(), auth.Viewer{ID: "a", Email: "admin@outerfields.com", Admin: true}))
			}
			next.ServeHTTP(w, r)
		})
	})
	admin.NewHandler(admin.NewService(repo, nil)).Register(router)

	call := func(method, path, body string, asAdmin bool) (int, map[string]interface{}) {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		if asAdmin {
			req.Header.Set("X-Test-Admin", "1")
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec.Code, out
	}

	code, _ := call(http.MethodGet, "/admin/videos", "", false)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := call(http.MethodGet, "/admin/videos?q=processing&visibility=all", "", true)
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]interface{})
	require.EqualValues(t, 1, data["total"])

	code, body = call(http.MethodPatch, "/admin/videos/"+processing.ID, `{"visibility":"published"}`, true)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "processing", body["ingestStatus"])

	code, _ = call(http.MethodPatch, "/admin/videos/"+processing.ID, `{"tier":"vip"}`, true)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(http.MethodGet, "/admin/videos/missing", "", true)
	require.Equal(t, http.StatusNotFound, code)

	code, body = call(http.MethodDelete, "/admin/videos/"+processing.ID, "", true)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "archived", body["data"].(map[string]interface{})["visibility"])
}
