package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-callback-handler/internal/domain"
)

// ArchiveSummary upserts the summary row for s.Date. Reruns of the daily
// rollup replace the previous figures.
func ArchiveSummary(ctx context.Context, db *gorm.DB, s domain.DailySummary) error {
	rec := domain.NewSummaryRecord(s)
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_hits", "active_slugs_count", "top_slugs", "generated_at", "updated_at"}),
	}).Create(&rec).Error
}

// GetArchivedSummary returns the archived summary for date, or
// gorm.ErrRecordNotFound.
func GetArchivedSummary(ctx context.Context, db *gorm.DB, date string) (*domain.DailySummary, error) {
	var rec domain.SummaryRecord
	if err := db.WithContext(ctx).Where("date = ?", date).First(&rec).Error; err != nil {
		return nil, err
	}
	s := rec.ToSummary()
	return &s, nil
}

// ListSummaries returns up to limit archived summaries, newest date first.
func ListSummaries(ctx context.Context, db *gorm.DB, limit int) ([]domain.DailySummary, error) {
	var recs []domain.SummaryRecord
	q := db.WithContext(ctx).Order("date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]domain.DailySummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToSummary())
	}
	return out, nil
}

// IsNotFound reports whether err means the archive has no such row.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
