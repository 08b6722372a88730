// Package playback decides whether a viewer may stream a video and, if so,
// issues a short lived HLS grant.
package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/observability/metrics"
	"github.com/outerfields/platform/pkg/video"
)

const DefaultTokenTTL = 900 * time.Second

var (
	ErrNotFound           = errors.New("video not found")
	ErrMembershipRequired = errors.New("membership required")
)

// LegacyError means the video predates remote hosting; the caller should serve
// AssetPath directly.
type LegacyError struct {
	AssetPath    string
	IngestStatus video.IngestStatus
}

func (e *LegacyError) Error() string {
	return "video is not stream-backed"
}

// NotReadyError means the asset exists remotely but cannot be streamed yet,
// or processing failed.
type NotReadyError struct {
	IngestStatus  video.IngestStatus
	FailureReason *string
}

func (e *NotReadyError) Error() string {
	if e.IngestStatus == video.StatusFailed {
		return "video processing failed"
	}
	return "video is still processing"
}

// Grant is what a player needs to start streaming. Times are unix seconds.
type Grant struct {
	VideoID   string               `json:"videoId"`
	StreamUID string               `json:"streamUid"`
	HLSURL    string               `json:"hlsUrl"`
	ExpiresAt int64                `json:"expiresAt"`
	IssuedAt  int64                `json:"issuedAt"`
	Policy    video.PlaybackPolicy `json:"policy"`
}

// Store loads video records.
type Store interface {
	Get(ctx context.Context, id string) (*video.Record, error)
}

// Host builds stream URLs and issues signed tokens.
type Host interface {
	CreatePlaybackToken(ctx context.Context, streamUID string, expiresAt time.Time) (string, error)
	PublicHLSURL(streamUID string) string
	SignedHLSURL(token string) string
}

type Service struct {
	store Store
	host  Host
	ttl   time.Duration
	now   func() time.Time
}

// NewService returns a grant issuer. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewService(store Store, host Host, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{store: store, host: host, ttl: ttl, now: time.Now}
}

// ResolvePlayback walks the access decision tree for one request. Draft and
// archived videos look exactly like missing ones to non-admins.
func (s *Service) ResolvePlayback(ctx context.Context, videoID string, viewer auth.Viewer) (*Grant, error) {
	rec, err := s.store.Get(ctx, videoID)
	if errors.Is(err, video.ErrNotFound) {
		metrics.GrantDenied("not_found")
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading video %s: %w", videoID, err)
	}
	if !viewer.Admin && rec.Visibility != video.VisibilityPublished {
		metrics.GrantDenied("not_found")
		return nil, ErrNotFound
	}

	if rec.Tier != video.TierFree && !viewer.Member && !viewer.Admin {
		metrics.GrantDenied("membership_required")
		return nil, ErrMembershipRequired
	}

	if !rec.StreamBacked() {
		metrics.GrantDenied("legacy")
		return nil, &LegacyError{AssetPath: rec.AssetPath, IngestStatus: rec.IngestStatus}
	}

	if rec.IngestStatus != video.StatusReady {
		metrics.GrantDenied(string(rec.IngestStatus))
		return nil, &NotReadyError{IngestStatus: rec.IngestStatus, FailureReason: rec.FailureReason}
	}

	issuedAt := s.now().Unix()
	grant := &Grant{
		VideoID:   rec.ID,
		StreamUID: *rec.StreamUID,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt + int64(s.ttl/time.Second),
		Policy:    rec.PlaybackPolicy,
	}

	if rec.PlaybackPolicy == video.PolicyPublic {
		grant.HLSURL = s.host.PublicHLSURL(*rec.StreamUID)
	} else {
		token, err := s.host.CreatePlaybackToken(ctx, *rec.StreamUID, time.Unix(grant.ExpiresAt, 0))
		if err != nil {
			return nil, fmt.Errorf("issuing playback token for %s: %w", rec.ID, err)
		}
		grant.HLSURL = s.host.SignedHLSURL(token)
	}

	metrics.GrantIssued()
	logger.WithVideo(rec.ID).WithFields(map[string]interface{}{
		"policy":     rec.PlaybackPolicy,
		"expires_at": grant.ExpiresAt,
	}).Debug("Playback grant issued")
	return grant, nil
}
