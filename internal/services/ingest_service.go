// Package services – IngestService
//
// IngestService is the request-handling pipeline behind /record/{slug}. Each
// inbound call is first classified as a viewer load or a capture:
//
//   - viewer: activate the slug, bind the caller as owner when none is bound,
//     and return the most recent captures. Read failures degrade to an empty
//     list.
//   - capture: require an active slug, record the request together with a
//     snapshot of the response policy, append it to the ledger, and hand the
//     stats, TTL and notification side effects to the background queue. The
//     caller answers with the same snapshot that was persisted.
//
// Observability: Capture and View are OpenTelemetry-instrumented.
package services

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/worker"
)

// ViewerFetchHeader marks the dashboard's own data fetches so they are never
// recorded as captures.
const ViewerFetchHeader = "X-Viewer-Fetch"

// DefaultMaxCaptureBytes bounds how much of a capture body is kept.
const DefaultMaxCaptureBytes int64 = 1 << 20

// Background task names, also used as metric labels.
const (
	TaskRecordHit  = "stats.record_hit"
	TaskRefreshTTL = "registry.refresh_ttl"
	TaskPublish    = "notify.publish"
	TaskBindOwner  = "registry.bind_owner"
)

// RequestClass is the outcome of Classify.
type RequestClass int

const (
	// ClassCapture is an inbound call to be recorded.
	ClassCapture RequestClass = iota
	// ClassViewer is the owner's dashboard loading or polling the slug.
	ClassViewer
)

func (c RequestClass) String() string {
	if c == ClassViewer {
		return "viewer"
	}
	return "capture"
}

// Classify decides whether a call is a viewer load: a GET that accepts HTML,
// or any call carrying the viewer fetch marker. Everything else is a capture.
// It looks only at its arguments.
func Classify(method string, h http.Header) RequestClass {
	if strings.TrimSpace(h.Get(ViewerFetchHeader)) != "" {
		return ClassViewer
	}
	if method == http.MethodGet {
		for _, v := range h.Values("Accept") {
			if strings.Contains(strings.ToLower(v), "text/html") {
				return ClassViewer
			}
		}
	}
	return ClassCapture
}

// Publisher delivers capture events to live viewers, best effort.
type Publisher interface {
	Publish(ctx context.Context, ev domain.CaptureEvent) error
}

// TaskRunner accepts fire-and-forget work.
type TaskRunner interface {
	Submit(name string, fn worker.Func) bool
}

// IngestService wires the registry, policy store, ledger and aggregator into
// the capture and viewer flows.
type IngestService struct {
	Registry  *RegistryService
	Policy    *PolicyService
	Ledger    *LedgerService
	Stats     *StatsService
	Publisher Publisher
	Tasks     TaskRunner

	// MaxBodyBytes bounds the stored body; reading stops there.
	MaxBodyBytes int64

	Log   zerolog.Logger
	Now   func() time.Time
	NewID func() string
}

func (s *IngestService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *IngestService) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

// CaptureInput is the transport-neutral view of an inbound capture call.
type CaptureInput struct {
	Slug       string
	Method     string
	Host       string
	Header     http.Header
	Query      url.Values
	Body       io.Reader
	RemoteAddr string
}

// CaptureResult carries the stored record and the policy snapshot the
// caller must answer with.
type CaptureResult struct {
	Record   domain.CaptureRecord
	Response domain.ResponseConfig
}

// Capture records one inbound call. It fails with ErrSlugNotFound, without
// writing anything, when the slug was never activated; any storage failure
// on the critical path is returned as a *StorageError.
func (s *IngestService) Capture(ctx context.Context, in CaptureInput) (*CaptureResult, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "Capture",
		trace.WithAttributes(
			attribute.String("slug", in.Slug),
			attribute.String("http.method", in.Method),
		),
	)
	defer span.End()

	active, err := s.Registry.IsActive(ctx, in.Slug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "is_active")
		return nil, err
	}
	if !active {
		return nil, ErrSlugNotFound
	}

	body := s.readBody(in.Body, in.Header)

	// Snapshot: the same value is stamped on the record and returned.
	policy, err := s.Policy.Get(ctx, in.Slug)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get_config")
		return nil, err
	}
	policy = policy.Delivered(in.Method)

	rec := domain.CaptureRecord{
		ID:                  s.newID(),
		Timestamp:           s.now(),
		Method:              in.Method,
		Headers:             headerMap(in.Header, in.Host),
		Body:                encodeBody(body),
		Query:               queryMap(in.Query),
		IP:                  ClientIP(in.Header, in.RemoteAddr),
		ResponseStatus:      policy.Status,
		ResponseBody:        policy.Body,
		ResponseContentType: policy.ContentType,
	}

	if err := s.Ledger.Append(ctx, in.Slug, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append_capture")
		return nil, err
	}
	span.SetAttributes(attribute.String("record.id", rec.ID))

	s.dispatchSideEffects(in.Slug, rec.ID)
	return &CaptureResult{Record: rec, Response: policy}, nil
}

// dispatchSideEffects queues the non-critical follow-ups of a capture. They
// run detached from the request context.
func (s *IngestService) dispatchSideEffects(slug, id string) {
	if s.Tasks == nil {
		return
	}
	if s.Stats != nil {
		s.Tasks.Submit(TaskRecordHit, func(ctx context.Context) error {
			return s.Stats.RecordHit(ctx, slug)
		})
	}
	s.Tasks.Submit(TaskRefreshTTL, func(ctx context.Context) error {
		return s.Registry.RefreshTTL(ctx, slug)
	})
	if s.Publisher != nil {
		ev := domain.CaptureEvent{Slug: slug, ID: id}
		s.Tasks.Submit(TaskPublish, func(ctx context.Context) error {
			return s.Publisher.Publish(ctx, ev)
		})
	}
}

// ViewInput describes a viewer load.
type ViewInput struct {
	Slug     string
	Host     string
	Identity *domain.Identity
}

// ViewResult is returned to the dashboard.
type ViewResult struct {
	Slug     string                 `json:"slug"`
	Host     string                 `json:"host"`
	Requests []domain.CaptureRecord `json:"requests"`
	// Activated is true when this load created the slug.
	Activated bool `json:"-"`
}

// View activates the slug, binds an owner in the background and returns the
// most recent captures. Only a malformed slug is an error.
func (s *IngestService) View(ctx context.Context, in ViewInput) (*ViewResult, error) {
	tr := otel.Tracer("services/IngestService")
	ctx, span := tr.Start(ctx, "View", trace.WithAttributes(attribute.String("slug", in.Slug)))
	defer span.End()

	activated, err := s.Registry.MarkActive(ctx, in.Slug)
	if err != nil {
		if errors.Is(err, ErrInvalidSlug) {
			return nil, err
		}
		span.RecordError(err)
		s.Log.Warn().Err(err).Str("slug", in.Slug).Msg("mark active failed")
	}

	if in.Identity != nil && !in.Identity.IsZero() && s.Tasks != nil {
		id := *in.Identity
		slug := in.Slug
		s.Tasks.Submit(TaskBindOwner, func(ctx context.Context) error {
			_, err := s.Registry.BindOwnerIfAbsent(ctx, slug, id)
			return err
		})
	}

	recs, err := s.Ledger.Recent(ctx, in.Slug, 0)
	if err != nil {
		span.RecordError(err)
		s.Log.Warn().Err(err).Str("slug", in.Slug).Msg("read recent captures failed")
		recs = []domain.CaptureRecord{}
	}
	span.SetAttributes(attribute.Int("records", len(recs)))

	return &ViewResult{Slug: in.Slug, Host: in.Host, Requests: recs, Activated: activated}, nil
}

func (s *IngestService) maxBody() int64 {
	if s.MaxBodyBytes <= 0 {
		return DefaultMaxCaptureBytes
	}
	return s.MaxBodyBytes
}

// readBody reads at most maxBody bytes. A read error keeps what arrived
// before it. Compressed payloads are inflated under the same bound; if
// inflating fails the raw bytes are kept.
func (s *IngestService) readBody(r io.Reader, h http.Header) []byte {
	if r == nil {
		return nil
	}
	limit := s.maxBody()
	raw, _ := io.ReadAll(io.LimitReader(r, limit))
	if len(raw) == 0 {
		return raw
	}

	var zr io.ReadCloser
	var err error
	switch strings.ToLower(strings.TrimSpace(h.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		zr, err = gzip.NewReader(bytes.NewReader(raw))
	case "deflate":
		zr, err = zlib.NewReader(bytes.NewReader(raw))
	default:
		return raw
	}
	if err != nil {
		return raw
	}
	defer zr.Close()
	inflated, err := io.ReadAll(io.LimitReader(zr, limit))
	if err != nil && len(inflated) == 0 {
		return raw
	}
	return inflated
}

// encodeBody stores valid JSON as-is, anything else as a JSON string, and
// nothing as null.
func encodeBody(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(bytes.TrimSpace(b))
	}
	s, _ := json.Marshal(string(b))
	return s
}

// ClientIP returns the first X-Forwarded-For hop, else the host of the
// transport peer address, else "unknown".
func ClientIP(h http.Header, remoteAddr string) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if remoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	return remoteAddr
}

// headerMap flattens headers with lowercase names: one value stays a
// string, repeated names become a list.
func headerMap(h http.Header, host string) map[string]any {
	out := make(map[string]any, len(h)+1)
	for k, vs := range h {
		out[strings.ToLower(k)] = flatten(vs)
	}
	if host != "" {
		if _, ok := out["host"]; !ok {
			out["host"] = host
		}
	}
	return out
}

func queryMap(q url.Values) map[string]any {
	out := make(map[string]any, len(q))
	for k, vs := range q {
		out[k] = flatten(vs)
	}
	return out
}

func flatten(vs []string) any {
	if len(vs) == 1 {
		return vs[0]
	}
	cp := make([]string, len(vs))
	copy(cp, vs)
	return cp
}
