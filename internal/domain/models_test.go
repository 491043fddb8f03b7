package domain

import (
	"encoding/json"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestTableName(t *testing.T) {
	if (SummaryRecord{}).TableName() != "daily_summaries" {
		t.Fatalf("SummaryRecord.TableName() = %q; want %q", (SummaryRecord{}).TableName(), "daily_summaries")
	}
}

func TestSummaryRecord_MigrateAndRoundTrip(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&SummaryRecord{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if !db.Migrator().HasTable(&SummaryRecord{}) {
		t.Fatalf("expected daily_summaries table")
	}

	gen := time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC)
	in := DailySummary{
		Date:             "2024-01-01",
		TotalHits:        12,
		ActiveSlugsCount: 2,
		TopSlugs:         []SlugHits{{Slug: "a-0101", Hits: 9}, {Slug: "b-0101", Hits: 3}},
		GeneratedAt:      gen,
	}
	rec := NewSummaryRecord(in)
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var got SummaryRecord
	if err := db.First(&got, "date = ?", "2024-01-01").Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	out := got.ToSummary()
	if out.TotalHits != 12 || out.ActiveSlugsCount != 2 || len(out.TopSlugs) != 2 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.TopSlugs[0] != (SlugHits{Slug: "a-0101", Hits: 9}) {
		t.Fatalf("top[0] = %+v", out.TopSlugs[0])
	}
	if !out.GeneratedAt.Equal(gen) {
		t.Fatalf("generatedAt = %v; want %v", out.GeneratedAt, gen)
	}
}

func TestToSummary_NilTopSlugsBecomesEmpty(t *testing.T) {
	s := (SummaryRecord{Date: "2024-01-01"}).ToSummary()
	if s.TopSlugs == nil {
		t.Fatalf("expected non-nil TopSlugs")
	}
	b, _ := json.Marshal(s)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if _, ok := m["topSlugs"].([]any); !ok {
		t.Fatalf("topSlugs should marshal as array, got %s", b)
	}
}

func TestResponseConfigDefaults(t *testing.T) {
	d := DefaultResponseConfig()
	if d.Status != 200 || d.Body != `{"success": true}` || d.ContentType != "application/json" {
		t.Fatalf("unexpected default: %+v", d)
	}
	c := ResponseConfig{Status: 204}.WithDefaults()
	if c.ContentType != DefaultResponseContentType {
		t.Fatalf("WithDefaults did not fill content type: %+v", c)
	}
	c = ResponseConfig{Status: 200, ContentType: "text/xml"}.WithDefaults()
	if c.ContentType != "text/xml" {
		t.Fatalf("WithDefaults overwrote content type: %+v", c)
	}
}

func TestResponseConfigDelivered(t *testing.T) {
	cases := []struct {
		name       string
		in         ResponseConfig
		method     string
		wantStatus int
		wantBody   string
	}{
		{"final status untouched", ResponseConfig{Status: 201, Body: "ok"}, "POST", 201, "ok"},
		{"processing served as 200", ResponseConfig{Status: 102, Body: "ok"}, "POST", 200, "ok"},
		{"switching protocols served as 200", ResponseConfig{Status: 101, Body: "ok"}, "GET", 200, "ok"},
		{"no content drops body", ResponseConfig{Status: 204, Body: "ok"}, "POST", 204, ""},
		{"not modified drops body", ResponseConfig{Status: 304, Body: "ok"}, "GET", 304, ""},
		{"head drops body", ResponseConfig{Status: 200, Body: "ok"}, "HEAD", 200, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Delivered(tc.method)
			if got.Status != tc.wantStatus || got.Body != tc.wantBody {
				t.Fatalf("Delivered(%q) = %+v; want status %d body %q", tc.method, got, tc.wantStatus, tc.wantBody)
			}
		})
	}
}

func TestIdentityKeyAndZero(t *testing.T) {
	if k := (Identity{ID: "u1", Email: "a@x.com"}).Key(); k != "u1" {
		t.Fatalf("Key = %q; want u1", k)
	}
	if k := (Identity{Email: " A@X.com "}).Key(); k != "a@x.com" {
		t.Fatalf("Key = %q; want a@x.com", k)
	}
	if !(Identity{Name: "n"}).IsZero() {
		t.Fatalf("identity without id/email should be zero")
	}
}

func TestCaptureRecord_NullBodyMarshals(t *testing.T) {
	b, err := json.Marshal(CaptureRecord{ID: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := m["body"]; !ok || v != nil {
		t.Fatalf("body = %v (present=%v); want null", v, ok)
	}
}
