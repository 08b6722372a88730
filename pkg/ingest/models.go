package ingest

import (
	"time"

	"github.com/outerfields/platform/pkg/video"
)

// UploadRequest is the admin's request for a direct upload slot.
type UploadRequest struct {
	Title              string  `json:"title"`
	SeriesID           string  `json:"seriesId"`
	FileSizeBytes      float64 `json:"fileSizeBytes"`
	FileName           string  `json:"fileName,omitempty"`
	Category           string  `json:"category,omitempty"`
	Description        string  `json:"description,omitempty"`
	EpisodeNumber      *int    `json:"episodeNumber,omitempty"`
	Tier               string  `json:"tier,omitempty"`
	PlaybackPolicy     string  `json:"playbackPolicy,omitempty"`
	MaxDurationSeconds *int    `json:"maxDurationSeconds,omitempty"`
}

// UploadReservation tells the client where to send the bytes.
type UploadReservation struct {
	VideoID          string             `json:"videoId"`
	StreamUID        string             `json:"streamUid"`
	UploadURL        string             `json:"uploadUrl"`
	TusResumable     string             `json:"tusResumable"`
	MaxFileSizeBytes int64              `json:"maxFileSizeBytes"`
	IngestStatus     video.IngestStatus `json:"ingestStatus"`
	ExpiresAt        int64              `json:"expiresAt"`
}

type CompleteRequest struct {
	VideoID string `json:"videoId"`
}

type CompleteResponse struct {
	VideoID      string             `json:"videoId"`
	IngestStatus video.IngestStatus `json:"ingestStatus"`
	StreamUID    *string            `json:"streamUid"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// GeneratedRequest registers an asset that already exists on the remote host.
type GeneratedRequest struct {
	Title           string `json:"title"`
	Category        string `json:"category"`
	StreamUID       string `json:"streamUid"`
	Description     string `json:"description,omitempty"`
	SeriesID        string `json:"seriesId,omitempty"`
	SeriesSlug      string `json:"seriesSlug,omitempty"`
	SeriesTitle     string `json:"seriesTitle,omitempty"`
	EpisodeNumber   *int   `json:"episodeNumber,omitempty"`
	Tier            string `json:"tier,omitempty"`
	PlaybackPolicy  string `json:"playbackPolicy,omitempty"`
	DurationSeconds *int   `json:"durationSeconds,omitempty"`
	SourceBytes     *int64 `json:"sourceBytes,omitempty"`
}

type GeneratedResponse struct {
	VideoID      string             `json:"videoId"`
	StreamUID    string             `json:"streamUid"`
	IngestStatus video.IngestStatus `json:"ingestStatus"`
	SeriesID     *string            `json:"seriesId"`
}
