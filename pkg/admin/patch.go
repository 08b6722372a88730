package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/outerfields/platform/pkg/video"
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

func invalid(field string) error {
	return ValidationError{reason: fmt.Errorf("Invalid %s value", field)}
}

// Patch is a partial admin edit. Nil fields are left unchanged.
type Patch struct {
	Title          *string
	Description    *string
	Tier           *video.Tier
	PlaybackPolicy *video.PlaybackPolicy
	Visibility     *video.Visibility
	SeriesID       *string
	EpisodeNumber  *int
	ClearEpisode   bool
	ThumbnailPath  *string
	AssetPath      *string
	IsFeatured     *bool
	FeaturedOrder  *int
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Tier == nil && p.PlaybackPolicy == nil &&
		p.Visibility == nil && p.SeriesID == nil && p.EpisodeNumber == nil && !p.ClearEpisode &&
		p.ThumbnailPath == nil && p.AssetPath == nil && p.IsFeatured == nil && p.FeaturedOrder == nil
}

// DecodePatch reads a snake_case JSON patch. Unknown keys are ignored, keys
// with the wrong type are rejected, and a blank title is treated as absent.
func DecodePatch(raw []byte) (Patch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Patch{}, ValidationError{reason: errors.New("Invalid JSON body")}
	}

	var p Patch
	if v, ok := fields["visibility"]; ok {
		var s string
		if json.Unmarshal(v, &s) != nil || !video.Visibility(s).Valid() {
			return Patch{}, invalid("visibility")
		}
		vis := video.Visibility(s)
		p.Visibility = &vis
	}
	if v, ok := fields["tier"]; ok {
		var s string
		if json.Unmarshal(v, &s) != nil || !video.Tier(s).Valid() {
			return Patch{}, invalid("tier")
		}
		tier := video.Tier(s)
		p.Tier = &tier
	}
	if v, ok := fields["playback_policy"]; ok {
		var s string
		if json.Unmarshal(v, &s) != nil || !video.PlaybackPolicy(s).Valid() {
			return Patch{}, invalid("playback_policy")
		}
		policy := video.PlaybackPolicy(s)
		p.PlaybackPolicy = &policy
	}

	if s, ok := optionalString(fields, "title"); ok {
		if t := strings.TrimSpace(s); t != "" {
			p.Title = &t
		}
	}
	if s, ok := optionalString(fields, "description"); ok {
		p.Description = &s
	}
	if s, ok := optionalString(fields, "series_id"); ok {
		s = strings.TrimSpace(s)
		p.SeriesID = &s
	}
	if s, ok := optionalString(fields, "thumbnail_path"); ok {
		s = strings.TrimSpace(s)
		p.ThumbnailPath = &s
	}
	if s, ok := optionalString(fields, "asset_path"); ok {
		s = strings.TrimSpace(s)
		p.AssetPath = &s
	}

	if v, ok := fields["episode_number"]; ok {
		if isNull(v) {
			p.ClearEpisode = true
		} else {
			n, err := decodeWhole(v)
			if err != nil {
				return Patch{}, invalid("episode_number")
			}
			p.EpisodeNumber = &n
		}
	}

	if v, ok := fields["is_featured"]; ok {
		featured, err := decodeFlag(v)
		if err != nil {
			return Patch{}, invalid("is_featured")
		}
		p.IsFeatured = &featured
	}
	if v, ok := fields["featured_order"]; ok {
		n, err := decodeWhole(v)
		if err != nil {
			return Patch{}, invalid("featured_order")
		}
		if n < 0 {
			n = 0
		}
		p.FeaturedOrder = &n
	}

	return p, nil
}

// optionalString only reports string values; other JSON types are ignored.
func optionalString(fields map[string]json.RawMessage, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// decodeWhole accepts any finite JSON number and floors it.
func decodeWhole(v json.RawMessage) (int, error) {
	if isNull(v) {
		return 0, errors.New("null")
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("out of range")
	}
	return int(math.Floor(f)), nil
}

// decodeFlag accepts true/false and 1/0.
func decodeFlag(v json.RawMessage) (bool, error) {
	if isNull(v) {
		return false, errors.New("null")
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		switch n {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	}
	return false, errors.New("not a flag")
}
