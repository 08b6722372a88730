// Package catalog seeds and edits the series a video can belong to.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/video"
	"gopkg.in/yaml.v3"
)

// Catalog is the seed file format:
//
//	series:
//	  - slug: crop-circles
//	    title: Crop Circles
//	    sort_order: 10
type Catalog struct {
	Series []video.SeriesInput `yaml:"series" json:"series"`
}

// Load reads a YAML catalog. An empty path yields an empty catalog.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Catalog{}, nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parsing series catalog: %w", err)
	}
	for i, s := range cat.Series {
		if video.NormalizeSlug(s.Slug) == "" || s.Title == "" {
			return Catalog{}, fmt.Errorf("series catalog entry %d needs a slug and title", i)
		}
	}
	return cat, nil
}

// Seed upserts every catalog entry. Running it again refreshes titles without
// clearing descriptions that were edited in the admin UI.
func Seed(ctx context.Context, repo *video.Repository, cat Catalog) (int, error) {
	var errs []error
	seeded := 0
	for _, in := range cat.Series {
		s, err := repo.UpsertSeries(ctx, in)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seeded++
		logger.WithField("series_id", s.ID).Debug("Series seeded")
	}
	return seeded, errors.Join(errs...)
}
