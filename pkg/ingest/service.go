package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/common/models"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/observability/metrics"
	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("admin access required")
)

// RemoteError is a failure of the remote host while reserving an upload. The
// reservation is kept and marked failed.
type RemoteError struct {
	VideoID string
	Err     error
}

func (e *RemoteError) Error() string {
	return e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// UploadSlotter reserves direct upload slots on the remote host.
type UploadSlotter interface {
	CreateDirectUpload(ctx context.Context, in stream.DirectUploadInput) (*stream.DirectUpload, error)
}

// eventPublishTimeout bounds a best-effort publish inside a request.
const eventPublishTimeout = 2 * time.Second

// EventPublisher receives video lifecycle events. Delivery is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, videoID string, data map[string]interface{}) error
}

type Service struct {
	validator *Validator
	repo      *video.Repository
	uploads   UploadSlotter
	events    EventPublisher
	newID     func() string
}

// NewService wires the reservation workflow. events may be nil.
func NewService(validator *Validator, repo *video.Repository, uploads UploadSlotter, events EventPublisher) *Service {
	return &Service{
		validator: validator,
		repo:      repo,
		uploads:   uploads,
		events:    events,
		newID:     func() string { return uuid.New().String() },
	}
}

// InitiateUpload creates the durable reservation first and only then asks the
// remote host for an upload slot, so a failed or interrupted call always
// leaves a record behind.
func (s *Service) InitiateUpload(ctx context.Context, admin auth.Viewer, req UploadRequest) (*UploadReservation, error) {
	if !admin.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !admin.Admin {
		return nil, ErrForbidden
	}
	if err := s.validator.ValidateUpload(req); err != nil {
		return nil, err
	}

	series, err := s.repo.FindSeries(ctx, req.SeriesID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = series.Slug
	}
	policy := video.PlaybackPolicy(req.PlaybackPolicy)
	if policy == "" {
		policy = video.PolicyPrivate
	}
	tier := video.Tier(req.Tier)
	if tier == "" {
		tier = video.TierGated
	}
	size := int64(req.FileSizeBytes)

	rec := &video.Record{
		ID:             s.newID(),
		Title:          title,
		Category:       category,
		SeriesID:       &series.ID,
		EpisodeNumber:  req.EpisodeNumber,
		Tier:           tier,
		Visibility:     video.VisibilityDraft,
		PlaybackPolicy: policy,
		IngestStatus:   video.StatusPendingUpload,
		IngestSource:   video.SourceUpload,
		SourceBytes:    &size,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		rec.Description = &d
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating upload reservation: %w", err)
	}

	log := logger.WithVideo(rec.ID).WithField("series_id", series.ID)

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = title + ".mp4"
	}
	in := stream.DirectUploadInput{
		UploadLength:   size,
		FileName:       fileName,
		CreatorID:      admin.ID,
		PlaybackPolicy: string(policy),
		Meta: map[string]string{
			"videoId":  rec.ID,
			"category": category,
			"seriesId": series.ID,
		},
	}
	if req.MaxDurationSeconds != nil {
		in.MaxDurationSeconds = *req.MaxDurationSeconds
	}

	slot, err := s.uploads.CreateDirectUpload(ctx, in)
	if err == nil {
		err = s.repo.AttachStreamUID(ctx, rec.ID, slot.StreamUID)
	}
	if err != nil {
		s.failReservation(ctx, rec.ID, err)
		log.WithError(err).Error("Failed to reserve direct upload")
		return nil, &RemoteError{VideoID: rec.ID, Err: err}
	}

	metrics.UploadReserved()
	log.WithField("stream_uid", slot.StreamUID).Info("Upload reserved")
	s.publish(ctx, models.EventUploadReserved, rec.ID, map[string]interface{}{
		"stream_uid": slot.StreamUID,
		"series_id":  series.ID,
		"bytes":      size,
	})

	return &UploadReservation{
		VideoID:          rec.ID,
		StreamUID:        slot.StreamUID,
		UploadURL:        slot.UploadURL,
		TusResumable:     stream.TusResumableVersion,
		MaxFileSizeBytes: stream.MaxDirectUploadBytes,
		IngestStatus:     video.StatusPendingUpload,
		ExpiresAt:        slot.ExpiresAt.Unix(),
	}, nil
}

// failReservation runs on a detached context: the request context may be the
// thing that expired.
func (s *Service) failReservation(ctx context.Context, videoID string, cause error) {
	reason := cause.Error()
	if markErr := s.repo.MarkUploadFailed(context.WithoutCancel(ctx), videoID, reason); markErr != nil {
		logger.WithVideo(videoID).WithError(markErr).Error("Failed to mark reservation failed")
	}
	metrics.UploadFailed()
	s.publish(ctx, models.EventUploadFailed, videoID, map[string]interface{}{"reason": reason})
}

// CompleteUpload records the client's claim that the bytes were sent. It only
// moves pending_upload forward; readiness comes from the webhook.
func (s *Service) CompleteUpload(ctx context.Context, videoID string) (*video.Record, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, ValidationError{reason: errors.New("videoId is required")}
	}

	before, err := s.repo.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.MarkUploadCompleted(ctx, videoID)
	if err != nil {
		return nil, err
	}

	if before.IngestStatus != rec.IngestStatus {
		metrics.UploadCompleted()
		logger.WithVideo(videoID).Info("Upload completed, awaiting processing")
		s.publish(ctx, models.EventUploadCompleted, videoID, map[string]interface{}{
			"ingest_status": rec.IngestStatus,
		})
	}
	return rec, nil
}

// RegisterGenerated records an asset that an out-of-band pipeline already
// pushed to the remote host. No upload slot is requested.
func (s *Service) RegisterGenerated(ctx context.Context, req GeneratedRequest) (*video.Record, error) {
	if err := s.validator.ValidateGenerated(req); err != nil {
		return nil, err
	}

	var seriesID *string
	if id := strings.TrimSpace(req.SeriesID); id != "" {
		seriesID = &id
	} else if strings.TrimSpace(req.SeriesSlug) != "" && strings.TrimSpace(req.SeriesTitle) != "" {
		series, err := s.repo.UpsertSeries(ctx, video.SeriesInput{
			Slug:        req.SeriesSlug,
			Title:       req.SeriesTitle,
			Description: req.Description,
		})
		if err != nil {
			return nil, err
		}
		seriesID = &series.ID
	}

	policy := video.PlaybackPolicy(req.PlaybackPolicy)
	if policy == "" {
		policy = video.PolicyPrivate
	}
	tier := video.Tier(req.Tier)
	if tier == "" {
		tier = video.TierGated
	}
	uid := strings.TrimSpace(req.StreamUID)

	rec := &video.Record{
		ID:              s.newID(),
		Title:           strings.TrimSpace(req.Title),
		Category:        strings.TrimSpace(req.Category),
		SeriesID:        seriesID,
		EpisodeNumber:   req.EpisodeNumber,
		Tier:            tier,
		Visibility:      video.VisibilityDraft,
		PlaybackPolicy:  policy,
		IngestStatus:    video.StatusProcessing,
		IngestSource:    video.SourceGenerated,
		StreamUID:       &uid,
		DurationSeconds: req.DurationSeconds,
		SourceBytes:     req.SourceBytes,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		rec.Description = &d
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	metrics.GeneratedCreated()
	logger.WithVideo(rec.ID).WithField("stream_uid", uid).Info("Generated video registered")
	s.publish(ctx, models.EventGeneratedCreated, rec.ID, map[string]interface{}{
		"stream_uid": uid,
		"category":   rec.Category,
	})
	return rec, nil
}

func (s *Service) publish(ctx context.Context, eventType, videoID string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishEvent(ctx, eventType, videoID, data); err != nil {
		logger.WithVideo(videoID).WithError(err).Warn("Failed to publish video event")
	}
}
