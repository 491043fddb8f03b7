// Package services – LedgerService
//
// This file implements the capture ledger: one capped Redis list per slug,
// newest record at the head. Append pushes, trims and re-applies the record
// TTL in a single Lua script so concurrent captures can never push a ledger
// past its cap. Reads are best effort; a record that fails to decode is
// skipped instead of failing the whole page.
//
// Export walks the full ledger and applies an ExportFilter (method and UTC
// calendar day) in memory, keeping ledger order.
package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

// Ledger defaults.
const (
	DefaultMaxRecords = 100
	DefaultViewLimit  = 50
)

// LedgerService keeps the capped, newest-first capture history of each slug.
type LedgerService struct {
	RDB redis.Cmdable
	// Max is the per-slug cap enforced on every append.
	Max int
	// ViewLimit is the default read size.
	ViewLimit int
	// TTL is re-applied to the ledger on every append; 0 disables expiry.
	TTL time.Duration
}

func (s *LedgerService) max() int {
	if s.Max <= 0 {
		return DefaultMaxRecords
	}
	return s.Max
}

// Append inserts rec at the head of slug's ledger and trims it to the cap in
// the same atomic step.
func (s *LedgerService) Append(ctx context.Context, slug string, rec domain.CaptureRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = repo.AppendCapture(ctx, s.RDB, slug, b, s.max(), s.TTL)
	return storageErr("append_capture", slug, err)
}

// Recent returns up to limit records newest first; limit <= 0 uses
// ViewLimit. Records that fail to decode are skipped.
func (s *LedgerService) Recent(ctx context.Context, slug string, limit int) ([]domain.CaptureRecord, error) {
	if limit <= 0 {
		limit = s.ViewLimit
		if limit <= 0 {
			limit = DefaultViewLimit
		}
	}
	raw, err := repo.RecentCaptures(ctx, s.RDB, slug, limit)
	if err != nil {
		return nil, storageErr("recent_captures", slug, err)
	}
	out := make([]domain.CaptureRecord, 0, len(raw))
	for _, r := range raw {
		var rec domain.CaptureRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ExportFilter selects records by method and UTC calendar day. Empty fields
// match everything.
type ExportFilter struct {
	Method string
	Date   string
}

// ParseExportFilter validates raw query values.
func ParseExportFilter(method, date string) (ExportFilter, error) {
	f := ExportFilter{Method: strings.ToUpper(strings.TrimSpace(method)), Date: strings.TrimSpace(date)}
	if f.Date != "" {
		if _, err := time.Parse(time.DateOnly, f.Date); err != nil {
			return ExportFilter{}, ErrInvalidDate
		}
	}
	return f, nil
}

// Match reports whether rec satisfies both predicates.
func (f ExportFilter) Match(rec domain.CaptureRecord) bool {
	if f.Method != "" && !strings.EqualFold(rec.Method, f.Method) {
		return false
	}
	if f.Date != "" && rec.Timestamp.UTC().Format(time.DateOnly) != f.Date {
		return false
	}
	return true
}

// Export returns the whole ledger of slug filtered by f, preserving ledger
// order.
func (s *LedgerService) Export(ctx context.Context, slug string, f ExportFilter) ([]domain.CaptureRecord, error) {
	all, err := s.Recent(ctx, slug, s.max())
	if err != nil {
		return nil, err
	}
	out := make([]domain.CaptureRecord, 0, len(all))
	for _, rec := range all {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
