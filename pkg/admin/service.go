// Package admin holds the moderation edits administrators make to video
// records after ingest.
package admin

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/common/models"
	"github.com/outerfields/platform/pkg/video"
)

// eventPublishTimeout bounds a best-effort publish inside a request.
const eventPublishTimeout = 2 * time.Second

// EventPublisher receives video lifecycle events. Delivery is best effort.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, videoID string, data map[string]interface{}) error
}

// PublishNotReadyError rejects publishing a stream-backed video that has not
// finished processing.
type PublishNotReadyError struct {
	IngestStatus video.IngestStatus
}

func (e *PublishNotReadyError) Error() string {
	return "Cannot publish a Stream-backed video until processing is complete"
}

func (e *PublishNotReadyError) Unwrap() error {
	return video.ErrPublishNotReady
}

type Service struct {
	repo   *video.Repository
	events EventPublisher
}

// NewService wires admin edits. events may be nil.
func NewService(repo *video.Repository, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

func (s *Service) List(ctx context.Context, filter video.ListFilter) (*video.ListResult, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (*video.Record, error) {
	return s.repo.Get(ctx, id)
}

// Update applies a patch. The publish and featured rules are checked here for
// a clear error and again inside the UPDATE statement, which is what holds
// under concurrent webhook deliveries.
func (s *Service) Update(ctx context.Context, id string, patch Patch, actor string) (*video.Record, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return existing, nil
	}

	publishing := patch.Visibility != nil && *patch.Visibility == video.VisibilityPublished
	if publishing && existing.StreamBacked() && existing.IngestStatus != video.StatusReady {
		return nil, &PublishNotReadyError{IngestStatus: existing.IngestStatus}
	}

	nextVisibility := existing.Visibility
	if patch.Visibility != nil {
		nextVisibility = *patch.Visibility
	}
	if patch.IsFeatured != nil && *patch.IsFeatured && nextVisibility != video.VisibilityPublished {
		return nil, video.ErrFeatureNeedsPublish
	}

	fields := map[string]interface{}{}
	if patch.Title != nil {
		fields["title"] = *patch.Title
	}
	if patch.Description != nil {
		if d := strings.TrimSpace(*patch.Description); d != "" {
			fields["description"] = d
		} else {
			fields["description"] = nil
		}
	}
	if patch.Tier != nil {
		fields["tier"] = *patch.Tier
	}
	if patch.PlaybackPolicy != nil {
		fields["playback_policy"] = *patch.PlaybackPolicy
	}
	if patch.SeriesID != nil {
		if *patch.SeriesID == "" {
			fields["series_id"] = nil
		} else {
			series, err := s.repo.FindSeries(ctx, *patch.SeriesID)
			if err != nil {
				return nil, err
			}
			fields["series_id"] = series.ID
			fields["category"] = series.Slug
		}
	}
	if patch.ClearEpisode {
		fields["episode_number"] = nil
	} else if patch.EpisodeNumber != nil {
		fields["episode_number"] = *patch.EpisodeNumber
	}
	if patch.ThumbnailPath != nil {
		fields["thumbnail_path"] = *patch.ThumbnailPath
	}
	if patch.AssetPath != nil {
		fields["asset_path"] = *patch.AssetPath
	}
	if patch.Visibility != nil {
		fields["visibility"] = *patch.Visibility
	}
	if patch.FeaturedOrder != nil {
		fields["featured_order"] = *patch.FeaturedOrder
	}
	if patch.IsFeatured != nil {
		fields["is_featured"] = *patch.IsFeatured
		if !*patch.IsFeatured {
			fields["featured_order"] = 0
		}
	}
	// Leaving published also leaves the featured rail.
	if nextVisibility != video.VisibilityPublished && existing.IsFeatured {
		fields["is_featured"] = false
		fields["featured_order"] = 0
	}

	changed := make([]string, 0, len(fields))
	for k := range fields {
		changed = append(changed, k)
	}
	sort.Strings(changed)

	rec, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}

	logger.WithVideo(id).WithField("actor", actor).WithField("fields", changed).Info("Video updated")
	s.publish(ctx, models.EventVideoUpdated, id, map[string]interface{}{
		"actor":      actor,
		"fields":     changed,
		"visibility": rec.Visibility,
	})
	return rec, nil
}

// Archive soft-deletes a video. The remote asset is kept.
func (s *Service) Archive(ctx context.Context, id string, actor string) (*video.Record, error) {
	rec, err := s.repo.Archive(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.WithVideo(id).WithField("actor", actor).Info("Video archived")
	s.publish(ctx, models.EventVideoArchived, id, map[string]interface{}{"actor": actor})
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
