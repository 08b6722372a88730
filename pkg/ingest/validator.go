package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
)

var (
	errMissingTitle    = errors.New("title is required")
	errMissingSeries   = errors.New("seriesId is required")
	errMissingCategory = errors.New("category is required")
	errMissingStream   = errors.New("streamUid is required")
	errInvalidSize     = errors.New("fileSizeBytes must be a positive integer")
	errTooLarge        = fmt.Errorf("fileSizeBytes exceeds max supported size (%d bytes)", stream.MaxDirectUploadBytes)
	errInvalidTier     = errors.New("invalid tier")
	errInvalidPolicy   = errors.New("invalid playbackPolicy")
	errInvalidDuration = errors.New("maxDurationSeconds cannot be negative")
	errInvalidEpisode  = errors.New("episodeNumber must be a positive integer")
)

type ValidationError struct {
	reason error
}

func (e ValidationError) Error() string {
	return e.reason.Error()
}

func (e ValidationError) Unwrap() error {
	return e.reason
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Validator checks request shape and bounds. It never touches the store or
// the remote host.
type Validator struct {
	maxUploadBytes int64
}

func NewValidator() *Validator {
	return &Validator{maxUploadBytes: stream.MaxDirectUploadBytes}
}

func (v *Validator) ValidateUpload(req UploadRequest) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	if strings.TrimSpace(req.Title) == "" {
		return ValidationError{reason: errMissingTitle}
	}
	if strings.TrimSpace(req.SeriesID) == "" {
		return ValidationError{reason: errMissingSeries}
	}

	size := req.FileSizeBytes
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) || size != math.Trunc(size) {
		return ValidationError{reason: errInvalidSize}
	}
	if size > float64(v.maxUploadBytes) {
		return ValidationError{reason: errTooLarge}
	}

	if err := validateEnums(req.Tier, req.PlaybackPolicy); err != nil {
		return err
	}
	if req.MaxDurationSeconds != nil && *req.MaxDurationSeconds < 0 {
		return ValidationError{reason: errInvalidDuration}
	}
	if req.EpisodeNumber != nil && *req.EpisodeNumber <= 0 {
		return ValidationError{reason: errInvalidEpisode}
	}
	return nil
}

func (v *Validator) ValidateGenerated(req GeneratedRequest) error {
	if v == nil {
		return ValidationError{reason: errors.New("validator not initialised")}
	}
	if strings.TrimSpace(req.Title) == "" {
		return ValidationError{reason: errMissingTitle}
	}
	if strings.TrimSpace(req.Category) == "" {
		return ValidationError{reason: errMissingCategory}
	}
	if strings.TrimSpace(req.StreamUID) == "" {
		return ValidationError{reason: errMissingStream}
	}
	if req.EpisodeNumber != nil && *req.EpisodeNumber <= 0 {
		return ValidationError{reason: errInvalidEpisode}
	}
	return validateEnums(req.Tier, req.PlaybackPolicy)
}

func validateEnums(tier, policy string) error {
	if tier != "" && !video.Tier(tier).Valid() {
		return ValidationError{reason: fmt.Errorf("tier '%s': %w", tier, errInvalidTier)}
	}
	if policy != "" && !video.PlaybackPolicy(policy).Valid() {
		return ValidationError{reason: fmt.Errorf("playbackPolicy '%s': %w", policy, errInvalidPolicy)}
	}
	return nil
}
