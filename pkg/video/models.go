package video

import (
	"time"

	"gorm.io/datatypes"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPreview Tier = "preview"
	TierGated   Tier = "gated"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPreview, TierGated:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityDraft     Visibility = "draft"
	VisibilityPublished Visibility = "published"
	VisibilityArchived  Visibility = "archived"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityDraft, VisibilityPublished, VisibilityArchived:
		return true
	}
	return false
}

type PlaybackPolicy string

const (
	PolicyPrivate PlaybackPolicy = "private"
	PolicyPublic  PlaybackPolicy = "public"
)

func (p PlaybackPolicy) Valid() bool {
	return p == PolicyPrivate || p == PolicyPublic
}

// IngestStatus moves pending_upload -> processing -> ready. failed is reachable
// from pending_upload and processing; ready is never left by an automated
// transition.
type IngestStatus string

const (
	StatusPendingUpload IngestStatus = "pending_upload"
	StatusProcessing    IngestStatus = "processing"
	StatusReady         IngestStatus = "ready"
	StatusFailed        IngestStatus = "failed"
)

func (s IngestStatus) Valid() bool {
	switch s {
	case StatusPendingUpload, StatusProcessing, StatusReady, StatusFailed:
		return true
	}
	return false
}

type IngestSource string

const (
	SourceUpload    IngestSource = "upload"
	SourceGenerated IngestSource = "generated"
)

type Record struct {
	ID              string         `json:"id" gorm:"primaryKey;column:id"`
	Title           string         `json:"title" gorm:"column:title;not null"`
	Category        string         `json:"category" gorm:"column:category;index"`
	SeriesID        *string        `json:"series_id" gorm:"column:series_id;index"`
	EpisodeNumber   *int           `json:"episode_number" gorm:"column:episode_number"`
	Description     *string        `json:"description" gorm:"column:description"`
	Tier            Tier           `json:"tier" gorm:"column:tier;not null;default:gated"`
	Visibility      Visibility     `json:"visibility" gorm:"column:visibility;not null;default:draft;index"`
	PlaybackPolicy  PlaybackPolicy `json:"playback_policy" gorm:"column:playback_policy;not null;default:private"`
	IngestStatus    IngestStatus   `json:"ingest_status" gorm:"column:ingest_status;not null;default:pending_upload;index"`
	IngestSource    IngestSource   `json:"ingest_source" gorm:"column:ingest_source;not null;default:upload"`
	StreamUID       *string        `json:"stream_uid" gorm:"column:stream_uid;uniqueIndex"`
	FailureReason   *string        `json:"failure_reason" gorm:"column:failure_reason"`
	DurationSeconds *int           `json:"duration_seconds" gorm:"column:duration_seconds"`
	SourceBytes     *int64         `json:"source_bytes" gorm:"column:source_bytes"`
	PlaybackReadyAt *time.Time     `json:"playback_ready_at" gorm:"column:playback_ready_at"`
	AssetPath       string         `json:"asset_path" gorm:"column:asset_path"`
	ThumbnailPath   string         `json:"thumbnail_path" gorm:"column:thumbnail_path"`
	IsFeatured      bool           `json:"is_featured" gorm:"column:is_featured;not null;default:false"`
	FeaturedOrder   int            `json:"featured_order" gorm:"column:featured_order;not null;default:0"`
	CreatedAt       time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Record) TableName() string {
	return "videos"
}

// StreamBacked reports whether the remote host has an asset for this record.
func (r *Record) StreamBacked() bool {
	return r.StreamUID != nil && *r.StreamUID != ""
}

type Series struct {
	ID          string         `json:"id" gorm:"primaryKey;column:id"`
	Slug        string         `json:"slug" gorm:"column:slug;uniqueIndex;not null"`
	Title       string         `json:"title" gorm:"column:title;not null"`
	Description *string        `json:"description" gorm:"column:description"`
	Visibility  Visibility     `json:"visibility" gorm:"column:visibility;not null;default:published"`
	SortOrder   int            `json:"sort_order" gorm:"column:sort_order;not null;default:0"`
	HomeFilters datatypes.JSON `json:"home_filters" gorm:"column:home_filters"`
	CreatedAt   time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime:false"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:false"`
}

func (Series) TableName() string {
	return "series"
}

// WebhookUpdate is a normalised remote-host callback ready to be applied.
type WebhookUpdate struct {
	StreamUID       string
	Status          IngestStatus
	DurationSeconds *int
	SourceBytes     *int64
	FailureReason   string
}

// ListFilter narrows admin listings. Empty fields do not filter.
type ListFilter struct {
	Query        string
	Visibility   Visibility
	IngestStatus IngestStatus
	SeriesID     string
	Tier         Tier
	Featured     *bool
	Limit        int
	Offset       int
}

type ListResult struct {
	Videos []Record `json:"videos"`
	Total  int64    `json:"total"`
	Limit  int      `json:"limit"`
	Offset int      `json:"offset"`
}
