package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

func rec(id, method string, ts time.Time) domain.CaptureRecord {
	return domain.CaptureRecord{ID: id, Method: method, Timestamp: ts, ResponseStatus: 200}
}

func TestLedger_CapAndOrder(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	for i := 0; i < 120; i++ {
		if err := e.ledger.Append(ctx, "s", rec(strconv.Itoa(i), "POST", frozenNow)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	view, err := e.ledger.Recent(ctx, "s", 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(view) != 50 || view[0].ID != "119" {
		t.Fatalf("view len=%d head=%s", len(view), view[0].ID)
	}
	all, _ := e.ledger.Recent(ctx, "s", 1000)
	if len(all) != 100 || all[99].ID != "20" {
		t.Fatalf("all len=%d tail=%s", len(all), all[len(all)-1].ID)
	}
}

func TestLedger_SkipsUndecodable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_ = e.ledger.Append(ctx, "s", rec("a", "GET", frozenNow))
	e.mr.Lpush(repo.RequestsKey("s"), "{broken")
	_ = e.ledger.Append(ctx, "s", rec("b", "GET", frozenNow))

	got, err := e.ledger.Recent(ctx, "s", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestLedger_UnknownSlugEmpty(t *testing.T) {
	e := newEnv(t)
	got, err := e.ledger.Recent(context.Background(), "nope", 0)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("got %v err=%v", got, err)
	}
}

func TestLedger_ExportFilter(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	d1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	for _, r := range []domain.CaptureRecord{
		rec("1", "POST", d1),
		rec("2", "GET", d1),
		rec("3", "POST", d2),
		rec("4", "POST", d1),
		rec("5", "PUT", d1),
	} {
		_ = e.ledger.Append(ctx, "s", r)
	}

	f, err := ParseExportFilter("post", "2024-01-01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, err := e.ledger.Export(ctx, "s", f)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(got) != 2 || got[0].ID != "4" || got[1].ID != "1" {
		t.Fatalf("got %+v", got)
	}

	all, _ := e.ledger.Export(ctx, "s", ExportFilter{})
	if len(all) != 5 {
		t.Fatalf("unfiltered len=%d", len(all))
	}

	if _, err := ParseExportFilter("", "01/01/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("want ErrInvalidDate, got %v", err)
	}
}

func TestLedger_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := e.ledger.Append(ctx, "s", rec(strconv.Itoa(i), "POST", frozenNow)); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := e.ledger.Recent(ctx, "s", 200)
	if len(got) != 50 {
		t.Fatalf("len=%d; want 50 (no append lost)", len(got))
	}
	ids := map[string]bool{}
	for _, r := range got {
		ids[r.ID] = true
	}
	if len(ids) != 50 {
		t.Fatalf("distinct ids=%d", len(ids))
	}
}
