// Package services – StatsService
//
// StatsService is the usage aggregator. Every capture bumps a global and a
// per-slug counter for the current UTC day; once a day the counters of the
// previous day are rolled into a DailySummary, stored in Redis next to the
// counters, archived in SQLite, and the counters are given a short retention
// so reruns within that window still see them.
//
// Ties in the top-slugs ranking keep the order in which Redis returned the
// set members, which Redis does not guarantee. Exact ties are therefore not
// deterministic across runs.
package services

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

// Aggregator defaults.
const (
	DefaultTopN           = 5
	DefaultStatsRetention = 7 * 24 * time.Hour
)

// StatsService counts captures and produces daily summaries.
type StatsService struct {
	RDB redis.Cmdable
	// DB is the summary archive; nil disables archiving and history.
	DB *gorm.DB

	TopN      int
	Retention time.Duration
	Now       func() time.Time
}

func (s *StatsService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// RecordHit counts one capture against slug for today (UTC).
func (s *StatsService) RecordHit(ctx context.Context, slug string) error {
	date := s.now().Format(time.DateOnly)
	return storageErr("increment_hits", slug, repo.IncrementHits(ctx, s.RDB, slug, date))
}

// Yesterday returns the UTC date the scheduled rollup summarizes.
func (s *StatsService) Yesterday() string {
	return s.now().AddDate(0, 0, -1).Format(time.DateOnly)
}

// GenerateDailySummary rolls up the counters of date. Rerunning it for the
// same date overwrites the stored and archived summary.
func (s *StatsService) GenerateDailySummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	tr := otel.Tracer("services/StatsService")
	ctx, span := tr.Start(ctx, "GenerateDailySummary",
		trace.WithAttributes(attribute.String("stats.date", date)),
	)
	defer span.End()

	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, ErrInvalidDate
	}

	total, err := repo.TotalHits(ctx, s.RDB, date)
	if err != nil {
		return nil, storageErr("total_hits", "", err)
	}
	slugs, err := repo.KnownSlugs(ctx, s.RDB)
	if err != nil {
		return nil, storageErr("known_slugs", "", err)
	}
	hits, err := repo.SlugHits(ctx, s.RDB, slugs, date)
	if err != nil {
		return nil, storageErr("slug_hits", "", err)
	}

	ranked := make([]domain.SlugHits, 0, len(slugs))
	for i, slug := range slugs {
		if hits[i] > 0 {
			ranked = append(ranked, domain.SlugHits{Slug: slug, Hits: hits[i]})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Hits > ranked[j].Hits })

	topN := s.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	active := len(ranked)
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	summary := domain.DailySummary{
		Date:             date,
		TotalHits:        total,
		ActiveSlugsCount: active,
		TopSlugs:         ranked,
		GeneratedAt:      s.now(),
	}
	span.SetAttributes(
		attribute.Int64("stats.total_hits", total),
		attribute.Int("stats.active_slugs", active),
	)

	if err := repo.SaveSummary(ctx, s.RDB, summary); err != nil {
		return nil, storageErr("save_summary", "", err)
	}
	if s.DB != nil {
		if err := repo.ArchiveSummary(ctx, s.DB, summary); err != nil {
			return nil, storageErr("archive_summary", "", err)
		}
	}

	retention := s.Retention
	if retention <= 0 {
		retention = DefaultStatsRetention
	}
	if err := repo.ExpireDailyStats(ctx, s.RDB, date, slugs, retention); err != nil {
		return nil, storageErr("expire_stats", "", err)
	}
	return &summary, nil
}

// Summary returns the summary of date from Redis, falling back to the
// archive once the Redis copy is gone.
func (s *StatsService) Summary(ctx context.Context, date string) (*domain.DailySummary, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, ErrInvalidDate
	}
	sum, err := repo.GetSummary(ctx, s.RDB, date)
	if err != nil {
		return nil, storageErr("get_summary", "", err)
	}
	if sum != nil {
		return sum, nil
	}
	if s.DB == nil {
		return nil, ErrSummaryNotFound
	}
	sum, err = repo.GetArchivedSummary(ctx, s.DB, date)
	if repo.IsNotFound(err) {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, storageErr("get_archived_summary", "", err)
	}
	return sum, nil
}

// History lists archived summaries, newest first.
func (s *StatsService) History(ctx context.Context, limit int) ([]domain.DailySummary, error) {
	if s.DB == nil {
		return []domain.DailySummary{}, nil
	}
	out, err := repo.ListSummaries(ctx, s.DB, limit)
	if err != nil {
		return nil, storageErr("list_summaries", "", err)
	}
	return out, nil
}

// RunDaily triggers the rollup for the previous day shortly after every UTC
// midnight until ctx is cancelled. It is the in-process alternative to an
// external cron hitting the cron endpoint.
func (s *StatsService) RunDaily(ctx context.Context, log zerolog.Logger) {
	const offset = 5 * time.Minute
	for {
		now := s.now()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour).Add(offset)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		date := s.Yesterday()
		sum, err := s.GenerateDailySummary(ctx, date)
		if err != nil {
			log.Error().Err(err).Str("date", date).Msg("daily summary failed")
			continue
		}
		log.Info().Str("date", date).Int64("total_hits", sum.TotalHits).
			Int("active_slugs", sum.ActiveSlugsCount).Msg("daily summary generated")
	}
}
