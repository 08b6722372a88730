package video

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrNotFound            = errors.New("video not found")
	ErrStreamUIDAttached   = errors.New("video already has a stream uid")
	ErrDuplicateStreamUID  = errors.New("stream uid is already registered")
	ErrPublishNotReady     = errors.New("stream-backed video cannot be published until processing is complete")
	ErrFeatureNeedsPublish = errors.New("only published videos can be featured")
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	defaultFailure   = "Video processing failed"
)

// Repository is the video record store. Every status transition is a single
// conditional UPDATE so concurrent writers are serialised by the row lock and
// never need an application-level mutex.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Series{}, &Record{})
}

func (r *Repository) Create(ctx context.Context, rec *Record) error {
	rec.CreatedAt = r.now()
	rec.UpdatedAt = rec.CreatedAt
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateStreamUID
		}
		return fmt.Errorf("creating video %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	result := r.db.WithContext(ctx).First(&rec, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &rec, nil
}

func (r *Repository) GetByStreamUID(ctx context.Context, streamUID string) (*Record, error) {
	var rec Record
	result := r.db.WithContext(ctx).First(&rec, "stream_uid = ?", streamUID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &rec, nil
}

// AttachStreamUID links a reservation to its remote asset. It only succeeds
// once per record.
func (r *Repository) AttachStreamUID(ctx context.Context, id, streamUID string) error {
	result := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND stream_uid IS NULL", id).
		Updates(map[string]interface{}{
			"stream_uid": streamUID,
			"updated_at": r.now(),
		})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return ErrDuplicateStreamUID
	}
	if result.Error != nil {
		return fmt.Errorf("attaching stream uid to %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return r.missOrConflict(ctx, id, ErrStreamUIDAttached)
	}
	return nil
}

// MarkUploadFailed records a reservation whose remote upload slot could not be
// created. Records that already moved past pending_upload are left alone.
func (r *Repository) MarkUploadFailed(ctx context.Context, id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "Failed to initialize upload"
	}
	result := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND ingest_status = ?", id, StatusPendingUpload).
		Updates(map[string]interface{}{
			"ingest_status":  StatusFailed,
			"failure_reason": reason,
			"updated_at":     r.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("marking upload %s failed: %w", id, result.Error)
	}
	return nil
}

// MarkUploadCompleted advances pending_upload to processing and returns the
// current record either way.
func (r *Repository) MarkUploadCompleted(ctx context.Context, id string) (*Record, error) {
	result := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ? AND ingest_status = ?", id, StatusPendingUpload).
		Updates(map[string]interface{}{
			"ingest_status": StatusProcessing,
			"updated_at":    r.now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("completing upload %s: %w", id, result.Error)
	}
	return r.Get(ctx, id)
}

// ApplyWebhook applies one normalised remote-host callback. The guard for each
// target status lives in the WHERE clause of the same statement as the write.
func (r *Repository) ApplyWebhook(ctx context.Context, u WebhookUpdate) (*Record, error) {
	now := r.now()
	tx := r.db.WithContext(ctx).Model(&Record{})

	var result *gorm.DB
	switch u.Status {
	case StatusReady:
		// Replays of an identical ready event leave updated_at untouched.
		unchanged := []string{"ingest_status = 'ready'", "failure_reason IS NULL"}
		if u.DurationSeconds != nil {
			unchanged = append(unchanged, "duration_seconds IS NOT NULL")
		}
		if u.SourceBytes != nil {
			unchanged = append(unchanged, "source_bytes IS NOT NULL")
		}
		result = tx.Where("stream_uid = ?", u.StreamUID).
			Updates(map[string]interface{}{
				"ingest_status":     StatusReady,
				"duration_seconds":  gorm.Expr("COALESCE(duration_seconds, ?)", u.DurationSeconds),
				"source_bytes":      gorm.Expr("COALESCE(source_bytes, ?)", u.SourceBytes),
				"playback_ready_at": gorm.Expr("COALESCE(playback_ready_at, ?)", now),
				"failure_reason":    gorm.Expr("NULL"),
				"updated_at":        gorm.Expr("CASE WHEN "+strings.Join(unchanged, " AND ")+" THEN updated_at ELSE ? END", now),
			})
	case StatusProcessing:
		result = tx.Where("stream_uid = ? AND ingest_status IN ?", u.StreamUID,
			[]IngestStatus{StatusPendingUpload, StatusFailed}).
			Updates(map[string]interface{}{
				"ingest_status":  StatusProcessing,
				"failure_reason": gorm.Expr("NULL"),
				"updated_at":     now,
			})
	case StatusFailed:
		reason := strings.TrimSpace(u.FailureReason)
		if reason == "" {
			reason = defaultFailure
		}
		result = tx.Where("stream_uid = ? AND ingest_status <> ?", u.StreamUID, StatusReady).
			Updates(map[string]interface{}{
				"ingest_status":  StatusFailed,
				"failure_reason": reason,
				"updated_at":     now,
			})
	default:
		return nil, fmt.Errorf("unsupported webhook status %q", u.Status)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("applying %s to stream %s: %w", u.Status, u.StreamUID, result.Error)
	}
	return r.GetByStreamUID(ctx, u.StreamUID)
}

func (r *Repository) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := r.db.WithContext(ctx).Model(&Record{})
	if s := strings.TrimSpace(f.Query); s != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	if f.Visibility != "" {
		q = q.Where("visibility = ?", f.Visibility)
	}
	if f.IngestStatus != "" {
		q = q.Where("ingest_status = ?", f.IngestStatus)
	}
	if f.SeriesID != "" {
		q = q.Where("series_id = ?", f.SeriesID)
	}
	if f.Tier != "" {
		q = q.Where("tier = ?", f.Tier)
	}
	if f.Featured != nil {
		q = q.Where("is_featured = ?", *f.Featured)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting videos: %w", err)
	}

	var videos []Record
	err := q.Order("updated_at DESC").Order("id").Limit(limit).Offset(offset).Find(&videos).Error
	if err != nil {
		return nil, fmt.Errorf("listing videos: %w", err)
	}

	return &ListResult{Videos: videos, Total: total, Limit: limit, Offset: offset}, nil
}

// Update writes an admin patch. Publishing and featuring are guarded inside the
// statement as well, so a concurrent status change cannot slip a not-ready
// stream-backed video into the published state.
func (r *Repository) Update(ctx context.Context, id string, fields map[string]interface{}) (*Record, error) {
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}
	fields["updated_at"] = r.now()

	q := r.db.WithContext(ctx).Model(&Record{}).Where("id = ?", id)

	publishing := fields["visibility"] == VisibilityPublished
	if publishing {
		q = q.Where("(stream_uid IS NULL OR ingest_status = ?)", StatusReady)
	}
	if featured, ok := fields["is_featured"].(bool); ok && featured {
		if v, set := fields["visibility"]; set && v != VisibilityPublished {
			return nil, ErrFeatureNeedsPublish
		} else if !set {
			q = q.Where("visibility = ?", VisibilityPublished)
		}
	}

	result := q.Updates(fields)
	if result.Error != nil {
		return nil, fmt.Errorf("updating video %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if publishing && rec.StreamBacked() && rec.IngestStatus != StatusReady {
			return nil, ErrPublishNotReady
		}
		return nil, ErrFeatureNeedsPublish
	}
	return r.Get(ctx, id)
}

// Archive is a soft delete; the remote asset is left in place.
func (r *Repository) Archive(ctx context.Context, id string) (*Record, error) {
	result := r.db.WithContext(ctx).Model(&Record{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"visibility":     VisibilityArchived,
			"is_featured":    false,
			"featured_order": 0,
			"updated_at":     r.now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("archiving video %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *Repository) missOrConflict(ctx context.Context, id string, conflict error) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return conflict
}
