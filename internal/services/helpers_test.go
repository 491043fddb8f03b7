package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	sqlite "github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
	"github.com/tbourn/go-callback-handler/internal/worker"
)

var frozenNow = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return frozenNow }

// redisRegistry adapts the repo free functions to RegistryRepo.
type redisRegistry struct{}

func (redisRegistry) IsActive(ctx context.Context, rdb redis.Cmdable, slug string) (bool, error) {
	return repo.IsActive(ctx, rdb, slug)
}
func (redisRegistry) MarkActive(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) (bool, error) {
	return repo.MarkActive(ctx, rdb, slug, ttl)
}
func (redisRegistry) RefreshSlugTTL(ctx context.Context, rdb redis.Cmdable, slug string, ttl time.Duration) error {
	return repo.RefreshSlugTTL(ctx, rdb, slug, ttl)
}
func (redisRegistry) GetOwner(ctx context.Context, rdb redis.Cmdable, slug string) (*domain.Identity, error) {
	return repo.GetOwner(ctx, rdb, slug)
}
func (redisRegistry) SetOwnerIfAbsent(ctx context.Context, rdb redis.Cmdable, slug string, owner domain.Identity, ttl time.Duration) (bool, error) {
	return repo.SetOwnerIfAbsent(ctx, rdb, slug, owner, ttl)
}
func (redisRegistry) AddUserSlug(ctx context.Context, rdb redis.Cmdable, identity, slug string) error {
	return repo.AddUserSlug(ctx, rdb, identity, slug)
}
func (redisRegistry) ListUserSlugs(ctx context.Context, rdb redis.Cmdable, identity string) ([]string, error) {
	return repo.ListUserSlugs(ctx, rdb, identity)
}

type fakePublisher struct {
	events []domain.CaptureEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, ev domain.CaptureEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

type env struct {
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	db     *gorm.DB
	reg    *RegistryService
	policy *PolicyService
	ledger *LedgerService
	stats  *StatsService
	pub    *fakePublisher
	ingest *IngestService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const ttl = 30 * 24 * time.Hour
	e := &env{mr: mr, rdb: rdb, db: db, pub: &fakePublisher{}}
	e.reg = &RegistryService{RDB: rdb, Repo: redisRegistry{}, TTL: ttl, Now: fixedClock}
	e.policy = &PolicyService{RDB: rdb, TTL: ttl}
	e.ledger = &LedgerService{RDB: rdb, Max: 100, ViewLimit: 50, TTL: ttl}
	e.stats = &StatsService{RDB: rdb, DB: db, TopN: 5, Retention: 7 * 24 * time.Hour, Now: fixedClock}
	e.ingest = &IngestService{
		Registry:  e.reg,
		Policy:    e.policy,
		Ledger:    e.ledger,
		Stats:     e.stats,
		Publisher: e.pub,
		// Workers: 0 runs side effects inline so tests observe them.
		Tasks: worker.New(worker.Options{Logger: zerolog.Nop()}),
		Log:   zerolog.Nop(),
		Now:   fixedClock,
	}
	return e
}
