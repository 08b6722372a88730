package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSeriesNotFound = errors.New("series not found")
	ErrEmptySlug      = errors.New("series slug cannot be empty")
	ErrSeriesExists   = errors.New("series slug already exists")
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeSlug lowercases and collapses anything outside [a-z0-9] into single
// dashes.
func NormalizeSlug(slug string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(slug)), "-")
	return strings.Trim(s, "-")
}

// SeriesID derives the stable identifier for a slug.
func SeriesID(slug string) string {
	return "series_" + strings.ReplaceAll(slug, "-", "_")
}

type SeriesInput struct {
	Slug        string   `yaml:"slug" json:"slug"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description,omitempty"`
	SortOrder   *int     `yaml:"sort_order" json:"sort_order,omitempty"`
	Visibility  string   `yaml:"visibility" json:"visibility,omitempty"`
	HomeFilters []string `yaml:"home_filters" json:"home_filters,omitempty"`
}

// FindSeries resolves a series by id or slug.
func (r *Repository) FindSeries(ctx context.Context, identifier string) (*Series, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrSeriesNotFound
	}
	var s Series
	result := r.db.WithContext(ctx).Where("id = ? OR slug = ?", identifier, identifier).First(&s)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrSeriesNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &s, nil
}

func (r *Repository) ListSeries(ctx context.Context) ([]Series, error) {
	var out []Series
	err := r.db.WithContext(ctx).Order("sort_order ASC").Order("title ASC").Find(&out).Error
	return out, err
}

// UpsertSeries creates the series for a slug or refreshes its title. An empty
// description never clears an existing one.
func (r *Repository) UpsertSeries(ctx context.Context, in SeriesInput) (*Series, error) {
	slug := NormalizeSlug(in.Slug)
	if slug == "" {
		return nil, ErrEmptySlug
	}

	filters := in.HomeFilters
	if len(filters) == 0 {
		filters = []string{"series"}
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encoding home filters: %w", err)
	}

	now := r.now()
	s := Series{
		ID:          SeriesID(slug),
		Slug:        slug,
		Title:       strings.TrimSpace(in.Title),
		Visibility:  VisibilityPublished,
		HomeFilters: datatypes.JSON(encoded),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		s.Description = &d
	}
	if in.SortOrder != nil {
		s.SortOrder = *in.SortOrder
	}
	if v := Visibility(in.Visibility); v.Valid() {
		s.Visibility = v
	}

	assignments := map[string]interface{}{
		"title":       s.Title,
		"description": gorm.Expr("COALESCE(excluded.description, series.description)"),
		"updated_at":  now,
	}
	if in.SortOrder != nil {
		assignments["sort_order"] = s.SortOrder
	}
	if len(in.HomeFilters) > 0 {
		assignments["home_filters"] = s.HomeFilters
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&s).Error
	if err != nil {
		return nil, fmt.Errorf("upserting series %s: %w", slug, err)
	}
	return r.FindSeries(ctx, slug)
}

// HomeFilterTags decodes the ordered tag list.
func (s *Series) HomeFilterTags() []string {
	var tags []string
	if len(s.HomeFilters) == 0 {
		return tags
	}
	if err := json.Unmarshal(s.HomeFilters, &tags); err != nil {
		return nil
	}
	return tags
}

// CreateSeries inserts a new series. Without an explicit sort order it is
// placed after every existing series.
func (r *Repository) CreateSeries(ctx context.Context, in SeriesInput) (*Series, error) {
	slug := NormalizeSlug(in.Slug)
	if slug == "" {
		return nil, ErrEmptySlug
	}

	sortOrder := 0
	if in.SortOrder != nil {
		sortOrder = *in.SortOrder
	} else {
		var maxOrder int
		if err := r.db.WithContext(ctx).Model(&Series{}).Select("COALESCE(MAX(sort_order), 0)").Scan(&maxOrder).Error; err != nil {
			return nil, fmt.Errorf("reading series order: %w", err)
		}
		sortOrder = maxOrder + 10
	}

	filters := in.HomeFilters
	if len(filters) == 0 {
		filters = []string{"series"}
	}
	encoded, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encoding home filters: %w", err)
	}

	now := r.now()
	s := Series{
		ID:          SeriesID(slug),
		Slug:        slug,
		Title:       strings.TrimSpace(in.Title),
		Visibility:  VisibilityPublished,
		SortOrder:   sortOrder,
		HomeFilters: datatypes.JSON(encoded),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		s.Description = &d
	}
	if v := Visibility(in.Visibility); v.Valid() {
		s.Visibility = v
	}

	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSeriesExists
		}
		return nil, fmt.Errorf("creating series %s: %w", slug, err)
	}
	return &s, nil
}

// SeriesPatch is a partial series edit; nil fields are unchanged.
type SeriesPatch struct {
	Title       *string
	Description *string
	Visibility  *Visibility
	SortOrder   *int
	HomeFilters []string
}

// UpdateSeries edits the series found by id or slug.
func (r *Repository) UpdateSeries(ctx context.Context, identifier string, p SeriesPatch) (*Series, error) {
	existing, err := r.FindSeries(ctx, identifier)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"updated_at": r.now()}
	if p.Title != nil && strings.TrimSpace(*p.Title) != "" {
		fields["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		if d := strings.TrimSpace(*p.Description); d != "" {
			fields["description"] = d
		} else {
			fields["description"] = nil
		}
	}
	if p.Visibility != nil {
		fields["visibility"] = *p.Visibility
	}
	if p.SortOrder != nil {
		fields["sort_order"] = *p.SortOrder
	}
	if p.HomeFilters != nil {
		encoded, err := json.Marshal(p.HomeFilters)
		if err != nil {
			return nil, fmt.Errorf("encoding home filters: %w", err)
		}
		fields["home_filters"] = datatypes.JSON(encoded)
	}

	if err := r.db.WithContext(ctx).Model(&Series{}).Where("id = ?", existing.ID).Updates(fields).Error; err != nil {
		return nil, fmt.Errorf("updating series %s: %w", existing.ID, err)
	}
	return r.FindSeries(ctx, existing.ID)
}
