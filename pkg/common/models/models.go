package models

import "time"

// Video lifecycle event types.
const (
	EventUploadReserved   = "video.upload.reserved"
	EventUploadFailed     = "video.upload.failed"
	EventUploadCompleted  = "video.upload.completed"
	EventGeneratedCreated = "video.generated.registered"
	EventIngestPrefix     = "video.ingest."
	EventVideoUpdated     = "video.updated"
	EventVideoArchived    = "video.archived"
)

// Event is the envelope written to the lifecycle topic.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	VideoID   string                 `json:"video_id"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
