package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

func TestClassify(t *testing.T) {
	h := func(kv ...string) http.Header {
		out := http.Header{}
		for i := 0; i < len(kv); i += 2 {
			out.Add(kv[i], kv[i+1])
		}
		return out
	}
	cases := []struct {
		name   string
		method string
		header http.Header
		want   RequestClass
	}{
		{"browser GET", "GET", h("Accept", "text/html,application/xhtml+xml"), ClassViewer},
		{"GET json", "GET", h("Accept", "application/json"), ClassCapture},
		{"POST html", "POST", h("Accept", "text/html"), ClassCapture},
		{"viewer marker", "POST", h(ViewerFetchHeader, "1"), ClassViewer},
		{"bare GET", "GET", h(), ClassCapture},
		{"HEAD html", "HEAD", h("Accept", "text/html"), ClassCapture},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.method, tc.header); got != tc.want {
				t.Fatalf("Classify = %v; want %v", got, tc.want)
			}
			// Stateless: same input, same answer.
			if again := Classify(tc.method, tc.header); again != tc.want {
				t.Fatalf("non-deterministic classification")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	h := http.Header{}
	h.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientIP(h, "10.0.0.2:5555"); got != "203.0.113.9" {
		t.Fatalf("xff: %q", got)
	}
	if got := ClientIP(http.Header{}, "192.0.2.1:443"); got != "192.0.2.1" {
		t.Fatalf("peer: %q", got)
	}
	if got := ClientIP(http.Header{}, ""); got != "unknown" {
		t.Fatalf("unknown: %q", got)
	}
}

func capture(e *env, slug, method, body string, hdr http.Header) (*CaptureResult, error) {
	if hdr == nil {
		hdr = http.Header{}
	}
	return e.ingest.Capture(context.Background(), CaptureInput{
		Slug:       slug,
		Method:     method,
		Host:       "hooks.example.com",
		Header:     hdr,
		Query:      url.Values{"a": {"1"}, "b": {"x", "y"}},
		Body:       strings.NewReader(body),
		RemoteAddr: "192.0.2.1:1234",
	})
}

func TestCapture_InactiveSlugIsNotFoundAndWritesNothing(t *testing.T) {
	e := newEnv(t)
	_, err := capture(e, "ghost-0101", "POST", `{"a":1}`, nil)
	if !errors.Is(err, ErrSlugNotFound) {
		t.Fatalf("want ErrSlugNotFound, got %v", err)
	}
	if e.mr.Exists(repo.RequestsKey("ghost-0101")) {
		t.Fatalf("ledger written for inactive slug")
	}
	if len(e.pub.events) != 0 {
		t.Fatalf("event published for inactive slug")
	}
	if _, err := capture(e, "Not A Slug", "POST", "", nil); !errors.Is(err, ErrSlugNotFound) {
		t.Fatalf("malformed slug: want ErrSlugNotFound, got %v", err)
	}
}

func TestCapture_RecordsRequestAndSideEffects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hook-0101"
	if _, err := e.reg.MarkActive(ctx, slug); err != nil {
		t.Fatalf("activate: %v", err)
	}

	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Add("X-Multi", "1")
	hdr.Add("X-Multi", "2")
	res, err := capture(e, slug, "POST", `{"event":"paid"}`, hdr)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	r := res.Record
	if r.ID == "" || r.Method != "POST" || r.IP != "192.0.2.1" {
		t.Fatalf("record=%+v", r)
	}
	if string(r.Body) != `{"event":"paid"}` {
		t.Fatalf("body=%s", r.Body)
	}
	if r.Headers["content-type"] != "application/json" || r.Headers["host"] != "hooks.example.com" {
		t.Fatalf("headers=%v", r.Headers)
	}
	if multi, ok := r.Headers["x-multi"].([]string); !ok || len(multi) != 2 {
		t.Fatalf("x-multi=%v", r.Headers["x-multi"])
	}
	if r.Query["a"] != "1" {
		t.Fatalf("query=%v", r.Query)
	}
	if r.ResponseStatus != 200 || res.Response != domain.DefaultResponseConfig() {
		t.Fatalf("default policy not applied: %+v", res.Response)
	}

	stored, _ := e.ledger.Recent(ctx, slug, 0)
	if len(stored) != 1 || stored[0].ID != r.ID {
		t.Fatalf("stored=%+v", stored)
	}
	if n, _ := repo.TotalHits(ctx, e.rdb, "2024-01-01"); n != 1 {
		t.Fatalf("hits=%d", n)
	}
	if len(e.pub.events) != 1 || e.pub.events[0] != (domain.CaptureEvent{Slug: slug, ID: r.ID}) {
		t.Fatalf("events=%+v", e.pub.events)
	}
	if e.mr.TTL(repo.RequestsKey(slug)) <= 0 {
		t.Fatalf("ledger ttl not set")
	}
}

func TestCapture_BodyEncodings(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hook-0101"
	_, _ = e.reg.MarkActive(ctx, slug)

	res, _ := capture(e, slug, "POST", "a=1&b=2", nil)
	if string(res.Record.Body) != `"a=1\u0026b=2"` {
		t.Fatalf("raw body=%s", res.Record.Body)
	}
	res, _ = capture(e, slug, "DELETE", "", nil)
	if res.Record.Body != nil {
		t.Fatalf("empty body=%s", res.Record.Body)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"zipped":true}`))
	_ = zw.Close()
	hdr := http.Header{}
	hdr.Set("Content-Encoding", "gzip")
	res, err := capture(e, slug, "POST", buf.String(), hdr)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(res.Record.Body) != `{"zipped":true}` {
		t.Fatalf("gzip body=%s", res.Record.Body)
	}

	bad := http.Header{}
	bad.Set("Content-Encoding", "gzip")
	res, _ = capture(e, slug, "POST", "plain", bad)
	if string(res.Record.Body) != `"plain"` {
		t.Fatalf("undecodable gzip body=%s", res.Record.Body)
	}
}

func TestCapture_BodyIsBounded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.ingest.MaxBodyBytes = 8
	_, _ = e.reg.MarkActive(ctx, "hook-0101")
	res, err := capture(e, "hook-0101", "POST", "0123456789abcdef", nil)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if string(res.Record.Body) != `"01234567"` {
		t.Fatalf("body=%s", res.Record.Body)
	}
}

func TestCapture_PolicySnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hook-0101"
	_, _ = e.reg.MarkActive(ctx, slug)
	if _, err := e.policy.Set(ctx, slug, domain.ResponseConfig{Status: 201, Body: `{"ok":true}`, ContentType: "application/json"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	res, err := capture(e, slug, "POST", "{}", nil)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if res.Response.Status != 201 || res.Response.Body != `{"ok":true}` || res.Record.ResponseStatus != 201 {
		t.Fatalf("res=%+v", res)
	}

	if _, err := e.policy.Set(ctx, slug, domain.ResponseConfig{Status: 500, Body: "later"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	stored, _ := e.ledger.Recent(ctx, slug, 0)
	if stored[0].ResponseStatus != 201 || stored[0].ResponseBody != `{"ok":true}` {
		t.Fatalf("stored record changed: %+v", stored[0])
	}
}

func TestCapture_StampsDeliveredResponse(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hook-0101"
	_, _ = e.reg.MarkActive(ctx, slug)

	cases := []struct {
		status, wantStatus int
		method, wantBody   string
	}{
		{102, 200, "POST", "pong"},
		{204, 204, "POST", ""},
		{304, 304, "GET", ""},
		{200, 200, "HEAD", ""},
	}
	for _, tc := range cases {
		if _, err := e.policy.Set(ctx, slug, domain.ResponseConfig{Status: tc.status, Body: "pong", ContentType: "text/plain"}); err != nil {
			t.Fatalf("set %d: %v", tc.status, err)
		}
		res, err := capture(e, slug, tc.method, "", nil)
		if err != nil {
			t.Fatalf("capture %d: %v", tc.status, err)
		}
		if res.Response.Status != tc.wantStatus || res.Response.Body != tc.wantBody {
			t.Fatalf("status %d %s: response=%+v", tc.status, tc.method, res.Response)
		}
		if res.Record.ResponseStatus != res.Response.Status || res.Record.ResponseBody != res.Response.Body {
			t.Fatalf("status %d %s: record %+v disagrees with response %+v", tc.status, tc.method, res.Record, res.Response)
		}
	}
}

func TestCapture_SideEffectFailuresDoNotFailCapture(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.pub.err = errors.New("pubsub down")
	_, _ = e.reg.MarkActive(ctx, "hook-0101")
	if _, err := capture(e, "hook-0101", "POST", "{}", nil); err != nil {
		t.Fatalf("capture failed on publish error: %v", err)
	}
}

func TestCapture_StorageFailureIsStorageError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	_, _ = e.reg.MarkActive(ctx, "hook-0101")
	e.mr.Close()
	_, err := capture(e, "hook-0101", "POST", "{}", nil)
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("want StorageError, got %v", err)
	}
}

func TestCapture_ConcurrentAppendsRespectCap(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hot-0101"
	_, _ = e.reg.MarkActive(ctx, slug)
	e.ingest.Tasks = nil // counters are covered elsewhere

	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := capture(e, slug, "POST", `{"n":`+strconv.Itoa(i)+`}`, nil); err != nil {
				t.Errorf("capture: %v", err)
			}
		}(i)
	}
	wg.Wait()
	got, _ := e.ledger.Recent(ctx, slug, 1000)
	if len(got) != 100 {
		t.Fatalf("len=%d; want 100", len(got))
	}
}

func TestView_ActivatesBindsAndReads(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	const slug = "hook-0101"
	alice := &domain.Identity{ID: "u1", Email: "a@x.com"}

	res, err := e.ingest.View(ctx, ViewInput{Slug: slug, Host: "h", Identity: alice})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !res.Activated || res.Requests == nil || len(res.Requests) != 0 {
		t.Fatalf("res=%+v", res)
	}
	if ok, _ := e.reg.IsActive(ctx, slug); !ok {
		t.Fatalf("slug not active after view")
	}
	if owns, _ := e.reg.IsOwner(ctx, slug, *alice); !owns {
		t.Fatalf("owner not bound")
	}

	_, _ = capture(e, slug, "POST", "{}", nil)
	res, _ = e.ingest.View(ctx, ViewInput{Slug: slug, Identity: &domain.Identity{ID: "u2"}})
	if res.Activated || len(res.Requests) != 1 {
		t.Fatalf("second view=%+v", res)
	}
	if owns, _ := e.reg.IsOwner(ctx, slug, domain.Identity{ID: "u2"}); owns {
		t.Fatalf("owner overwritten")
	}
	slugs, _ := e.reg.ListSlugs(ctx, *alice)
	if len(slugs) != 1 || slugs[0] != slug {
		t.Fatalf("alice slugs=%v", slugs)
	}
}

func TestView_InvalidSlugAndDegradedRead(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	if _, err := e.ingest.View(ctx, ViewInput{Slug: "No Good"}); !errors.Is(err, ErrInvalidSlug) {
		t.Fatalf("want ErrInvalidSlug, got %v", err)
	}
	e.mr.Close()
	res, err := e.ingest.View(ctx, ViewInput{Slug: "hook-0101"})
	if err != nil {
		t.Fatalf("view must degrade, got %v", err)
	}
	if res.Requests == nil || len(res.Requests) != 0 {
		t.Fatalf("requests=%v", res.Requests)
	}
}
