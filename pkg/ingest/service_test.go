package ingest_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/ingest"
	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
	"github.com/outerfields/platform/pkg/video/videotest"
	"github.com/stretchr/testify/require"
)

type fakeSlotter struct {
	mu    sync.Mutex
	calls []stream.DirectUploadInput
	uid   string
	err   error
}

func (f *fakeSlotter) CreateDirectUpload(ctx context.Context, in stream.DirectUploadInput) (*stream.DirectUpload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &stream.DirectUpload{
		StreamUID: f.uid,
		UploadURL: "https://upload.videodelivery.net/tus/" + f.uid,
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

type publishedEvent struct {
	Type    string
	VideoID string
	Data    map[string]interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishEvent(ctx context.Context, eventType, videoID string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Type: eventType, VideoID: videoID, Data: data})
	return f.err
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

var admin = auth.Viewer{ID: "user-1", Email: "admin@outerfields.com", Admin: true}

func newService(t *testing.T, slotter *fakeSlotter) (*ingest.Service, *video.Repository, *fakePublisher) {
	t.Helper()
	repo, _ := videotest.NewRepository(t)
	events := &fakePublisher{}
	return ingest.NewService(ingest.NewValidator(), repo, slotter, events), repo, events
}

func TestInitiateUploadReservesAndAttaches(t *testing.T) {
	slotter := &fakeSlotter{uid: "uid-123"}
	svc, repo, events := newService(t, slotter)
	series := videotest.SeedSeries(t, repo, "crop-circles", "Crop Circles")

	maxDuration := 3600
	resp, err := svc.InitiateUpload(context.Background(), admin, ingest.UploadRequest{
		Title:              "Episode One",
		SeriesID:           series.Slug,
		FileSizeBytes:      2_000_000_000,
		MaxDurationSeconds: &maxDuration,
	})
	require.NoError(t, err)
	require.Equal(t, "uid-123", resp.StreamUID)
	require.Equal(t, "1.0.0", resp.TusResumable)
	require.Equal(t, stream.MaxDirectUploadBytes, resp.MaxFileSizeBytes)
	require.Equal(t, video.StatusPendingUpload, resp.IngestStatus)
	require.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), resp.ExpiresAt)

	rec, err := repo.Get(context.Background(), resp.VideoID)
	require.NoError(t, err)
	require.Equal(t, video.StatusPendingUpload, rec.IngestStatus)
	require.Equal(t, video.VisibilityDraft, rec.Visibility)
	require.Equal(t, video.PolicyPrivate, rec.PlaybackPolicy)
	require.Equal(t, "crop-circles", rec.Category)
	require.Equal(t, series.ID, *rec.SeriesID)
	require.Equal(t, "uid-123", *rec.StreamUID)
	require.Equal(t, int64(2_000_000_000), *rec.SourceBytes)
	require.Nil(t, rec.DurationSeconds)

	require.Len(t, slotter.calls, 1)
	call := slotter.calls[0]
	require.Equal(t, int64(2_000_000_000), call.UploadLength)
	require.Equal(t, "Episode One.mp4", call.FileName)
	require.Equal(t, "user-1", call.CreatorID)
	require.Equal(t, 3600, call.MaxDurationSeconds)
	require.Equal(t, "private", call.PlaybackPolicy)
	require.Equal(t, resp.VideoID, call.Meta["videoId"])
	require.Equal(t, series.ID, call.Meta["seriesId"])

	require.Equal(t, []string{"video.upload.reserved"}, events.types())
}

func TestInitiateUploadRejectsBeforeSideEffects(t *testing.T) {
	cases := map[string]ingest.UploadRequest{
		"missing title":  {SeriesID: "s", FileSizeBytes: 10},
		"missing series": {Title: "t", FileSizeBytes: 10},
		"zero size":      {Title: "t", SeriesID: "s"},
		"negative size":  {Title: "t", SeriesID: "s", FileSizeBytes: -1},
		"fractional":     {Title: "t", SeriesID: "s", FileSizeBytes: 10.5},
		"too large":      {Title: "t", SeriesID: "s", FileSizeBytes: float64(stream.MaxDirectUploadBytes + 1)},
		"bad tier":       {Title: "t", SeriesID: "s", FileSizeBytes: 10, Tier: "platinum"},
		"bad policy":     {Title: "t", SeriesID: "s", FileSizeBytes: 10, PlaybackPolicy: "secret"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			slotter := &fakeSlotter{uid: "uid"}
			svc, repo, _ := newService(t, slotter)
			videotest.SeedSeries(t, repo, "s", "S")

			_, err := svc.InitiateUpload(context.Background(), admin, req)
			require.Error(t, err)
			require.True(t, ingest.IsValidationError(err))
			require.Empty(t, slotter.calls)

			list, err := repo.List(context.Background(), video.ListFilter{})
			require.NoError(t, err)
			require.Zero(t, list.Total)
		})
	}
}

func TestInitiateUploadAcceptsMaximumSize(t *testing.T) {
	slotter := &fakeSlotter{uid: "uid-max"}
	svc, repo, _ := newService(t, slotter)
	videotest.SeedSeries(t, repo, "s", "S")

	_, err := svc.InitiateUpload(context.Background(), admin, ingest.UploadRequest{
		Title: "Big", SeriesID: "s", FileSizeBytes: float64(stream.MaxDirectUploadBytes),
	})
	require.NoError(t, err)
}

func TestInitiateUploadRequiresAdmin(t *testing.T) {
	svc, _, _ := newService(t, &fakeSlotter{uid: "uid"})
	req := ingest.UploadRequest{Title: "t", SeriesID: "s", FileSizeBytes: 10}

	_, err := svc.InitiateUpload(context.Background(), auth.Viewer{}, req)
	require.ErrorIs(t, err, ingest.ErrUnauthenticated)

	_, err = svc.InitiateUpload(context.Background(), auth.Viewer{ID: "u", Email: "fan@example.com", Member: true}, req)
	require.ErrorIs(t, err, ingest.ErrForbidden)
}

func TestInitiateUploadUnknownSeries(t *testing.T) {
	slotter := &fakeSlotter{uid: "uid"}
	svc, _, _ := newService(t, slotter)

	_, err := svc.InitiateUpload(context.Background(), admin, ingest.UploadRequest{
		Title: "t", SeriesID: "nope", FileSizeBytes: 10,
	})
	require.ErrorIs(t, err, video.ErrSeriesNotFound)
	require.Empty(t, slotter.calls)
}

func TestInitiateUploadRemoteFailureKeepsFailedRecord(t *testing.T) {
	slotter := &fakeSlotter{err: errors.New("stream api unavailable")}
	svc, repo, events := newService(t, slotter)
	videotest.SeedSeries(t, repo, "s", "S")

	_, err := svc.InitiateUpload(context.Background(), admin, ingest.UploadRequest{
		Title: "t", SeriesID: "s", FileSizeBytes: 10, Category: "override",
	})
	var remote *ingest.RemoteError
	require.ErrorAs(t, err, &remote)
	require.NotEmpty(t, remote.VideoID)

	rec, err := repo.Get(context.Background(), remote.VideoID)
	require.NoError(t, err)
	require.Equal(t, video.StatusFailed, rec.IngestStatus)
	require.Equal(t, "stream api unavailable", *rec.FailureReason)
	require.Equal(t, "override", rec.Category)
	require.Nil(t, rec.StreamUID)
	require.Equal(t, []string{"video.upload.failed"}, events.types())
}

func TestCompleteUploadOnlyAdvancesPending(t *testing.T) {
	svc, repo, events := newService(t, &fakeSlotter{})
	pending := videotest.SeedVideo(t, repo, video.Record{StreamUID: videotest.StringPtr("uid-a")})
	ready := videotest.SeedVideo(t, repo, video.Record{StreamUID: videotest.StringPtr("uid-b"), IngestStatus: video.StatusReady})

	rec, err := svc.CompleteUpload(context.Background(), pending.ID)
	require.NoError(t, err)
	require.Equal(t, video.StatusProcessing, rec.IngestStatus)

	rec, err = svc.CompleteUpload(context.Background(), pending.ID)
	require.NoError(t, err)
	require.Equal(t, video.StatusProcessing, rec.IngestStatus)

	rec, err = svc.CompleteUpload(context.Background(), ready.ID)
	require.NoError(t, err)
	require.Equal(t, video.StatusReady, rec.IngestStatus)

	require.Equal(t, []string{"video.upload.completed"}, events.types())

	_, err = svc.CompleteUpload(context.Background(), "missing")
	require.ErrorIs(t, err, video.ErrNotFound)

	_, err = svc.CompleteUpload(context.Background(), " ")
	require.True(t, ingest.IsValidationError(err))
}

func TestRegisterGeneratedUpsertsSeries(t *testing.T) {
	svc, repo, _ := newService(t, &fakeSlotter{})

	rec, err := svc.RegisterGenerated(context.Background(), ingest.GeneratedRequest{
		Title:       "Generated Clip",
		Category:    "shorts",
		StreamUID:   " gen-uid ",
		SeriesSlug:  "Night Shift",
		SeriesTitle: "Night Shift",
	})
	require.NoError(t, err)
	require.Equal(t, video.StatusProcessing, rec.IngestStatus)
	require.Equal(t, video.SourceGenerated, rec.IngestSource)
	require.Equal(t, video.PolicyPrivate, rec.PlaybackPolicy)
	require.Equal(t, "gen-uid", *rec.StreamUID)
	require.Equal(t, "series_night_shift", *rec.SeriesID)

	series, err := repo.FindSeries(context.Background(), "night-shift")
	require.NoError(t, err)
	require.Equal(t, "Night Shift", series.Title)

	_, err = svc.RegisterGenerated(context.Background(), ingest.GeneratedRequest{
		Title: "Again", Category: "shorts", StreamUID: "gen-uid",
	})
	require.ErrorIs(t, err, video.ErrDuplicateStreamUID)
}

func TestRegisterGeneratedValidation(t *testing.T) {
	svc, _, _ := newService(t, &fakeSlotter{})

	for _, req := range []ingest.GeneratedRequest{
		{Category: "c", StreamUID: "u"},
		{Title: "t", StreamUID: "u"},
		{Title: "t", Category: "c"},
		{Title: "t", Category: "c", StreamUID: "u", PlaybackPolicy: "open"},
	} {
		_, err := svc.RegisterGenerated(context.Background(), req)
		require.True(t, ingest.IsValidationError(err), "%+v", req)
	}
}
