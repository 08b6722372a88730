// Package videotest provides an in-memory video store for tests.
package videotest

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/outerfields/platform/pkg/video"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewRepository opens a private in-memory SQLite database with the video
// schema migrated. A single connection keeps the memory database alive and
// serialises writers the way row locks would.
func NewRepository(t testing.TB) (*video.Repository, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := video.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo, db
}

// SeedSeries inserts a series and fails the test on error.
func SeedSeries(t testing.TB, repo *video.Repository, slug, title string) *video.Series {
	t.Helper()
	s, err := repo.UpsertSeries(context.Background(), video.SeriesInput{Slug: slug, Title: title})
	if err != nil {
		t.Fatalf("seed series: %v", err)
	}
	return s
}

// SeedVideo inserts rec after filling identity and default enum values.
func SeedVideo(t testing.TB, repo *video.Repository, rec video.Record) *video.Record {
	t.Helper()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Title == "" {
		rec.Title = "Episode"
	}
	if rec.Tier == "" {
		rec.Tier = video.TierFree
	}
	if rec.Visibility == "" {
		rec.Visibility = video.VisibilityDraft
	}
	if rec.PlaybackPolicy == "" {
		rec.PlaybackPolicy = video.PolicyPrivate
	}
	if rec.IngestStatus == "" {
		rec.IngestStatus = video.StatusPendingUpload
	}
	if rec.IngestSource == "" {
		rec.IngestSource = video.SourceUpload
	}
	if err := repo.Create(context.Background(), &rec); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	return &rec
}

func StringPtr(s string) *string { return &s }
