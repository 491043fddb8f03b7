// Package domain defines the data model of the callback handler: the caller
// identity, the per-slug synthetic response policy, captured requests, and
// the daily usage summaries. Records stored in Redis are serialized with the
// JSON tags below; SummaryRecord is additionally mapped with GORM for the
// long-term summary archive.
package domain

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Identity is the authenticated caller as handed to the core by the session
// layer. The core only compares identities; it never interprets provider data.
type Identity struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Image    string `json:"image,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Key returns the identifier used to index per-user data (user_slugs:{key}).
// The id is preferred; the lowercased email is the fallback.
func (i Identity) Key() string {
	if i.ID != "" {
		return i.ID
	}
	return strings.ToLower(strings.TrimSpace(i.Email))
}

// IsZero reports whether the identity carries neither an id nor an email and
// therefore cannot take part in ownership checks.
func (i Identity) IsZero() bool {
	return i.ID == "" && strings.TrimSpace(i.Email) == ""
}

// ResponseConfig is the synthetic response a slug serves to capture calls.
type ResponseConfig struct {
	Status      int    `json:"status"      example:"200"`
	Body        string `json:"body"        example:"{\"success\": true}"`
	ContentType string `json:"contentType" example:"application/json"`
}

// Default response policy values, served when a slug has no saved config.
const (
	DefaultResponseStatus      = 200
	DefaultResponseBody        = `{"success": true}`
	DefaultResponseContentType = "application/json"
)

// DefaultResponseConfig returns the policy used when none has been saved.
func DefaultResponseConfig() ResponseConfig {
	return ResponseConfig{
		Status:      DefaultResponseStatus,
		Body:        DefaultResponseBody,
		ContentType: DefaultResponseContentType,
	}
}

// WithDefaults fills a missing content type. Older stored configs carried only
// status and body.
func (c ResponseConfig) WithDefaults() ResponseConfig {
	if strings.TrimSpace(c.ContentType) == "" {
		c.ContentType = DefaultResponseContentType
	}
	return c
}

// Delivered returns the response HTTP can actually put on the wire for a
// request with the given method. Informational statuses cannot end an
// exchange and are served as 200 with the configured body. 204, 304 and
// HEAD replies carry no body, so Body is cleared for them.
func (c ResponseConfig) Delivered(method string) ResponseConfig {
	if c.Status < http.StatusOK {
		c.Status = http.StatusOK
	}
	if c.Status == http.StatusNoContent || c.Status == http.StatusNotModified || method == http.MethodHead {
		c.Body = ""
	}
	return c
}

// CaptureRecord is one observed inbound request together with the response
// that was served for it. Records are immutable once appended to a ledger.
//
// Headers and Query values are a string for single-valued entries and a
// []string when the name was repeated. Body holds the parsed JSON document
// when the payload was valid JSON, a JSON string with the raw payload
// otherwise, and null for an empty body.
type CaptureRecord struct {
	ID                  string          `json:"id"`
	Timestamp           time.Time       `json:"timestamp"`
	Method              string          `json:"method"`
	Headers             map[string]any  `json:"headers"`
	Body                json.RawMessage `json:"body" swaggertype:"object"`
	Query               map[string]any  `json:"query"`
	IP                  string          `json:"ip"`
	ResponseStatus      int             `json:"responseStatus"`
	ResponseBody        string          `json:"responseBody"`
	ResponseContentType string          `json:"responseContentType,omitempty"`
}

// CaptureEvent is the notification published for every new capture.
// Subscribers re-fetch the ledger; the event carries no payload.
type CaptureEvent struct {
	Slug string `json:"slug"`
	ID   string `json:"id"`
}

// SlugHits is one entry of a daily top-slugs ranking.
type SlugHits struct {
	Slug string `json:"slug"`
	Hits int64  `json:"hits"`
}

// DailySummary rolls up one UTC day of capture traffic.
type DailySummary struct {
	Date             string     `json:"date"`
	TotalHits        int64      `json:"totalHits"`
	ActiveSlugsCount int        `json:"activeSlugsCount"`
	TopSlugs         []SlugHits `json:"topSlugs"`
	GeneratedAt      time.Time  `json:"generatedAt"`
}

// SummaryRecord is the archived form of a DailySummary. Redis keeps summaries
// only as long as its keys live; the archive keeps the history.
//
// Fields:
//   - Date: the summarized UTC day (YYYY-MM-DD), primary key.
//   - TopSlugs: JSON-serialized ranking.
//   - GeneratedAt: when the rollup ran; reruns overwrite the row.
type SummaryRecord struct {
	Date             string     `gorm:"type:char(10);primaryKey"`
	TotalHits        int64      `gorm:"not null;default:0"`
	ActiveSlugsCount int        `gorm:"not null;default:0"`
	TopSlugs         []SlugHits `gorm:"type:text;serializer:json"`
	GeneratedAt      time.Time  `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the database table name for SummaryRecord.
func (SummaryRecord) TableName() string { return "daily_summaries" }

// ToSummary converts the archived row back into a DailySummary.
func (r SummaryRecord) ToSummary() DailySummary {
	top := r.TopSlugs
	if top == nil {
		top = []SlugHits{}
	}
	return DailySummary{
		Date:             r.Date,
		TotalHits:        r.TotalHits,
		ActiveSlugsCount: r.ActiveSlugsCount,
		TopSlugs:         top,
		GeneratedAt:      r.GeneratedAt,
	}
}

// NewSummaryRecord builds the archive row for s.
func NewSummaryRecord(s DailySummary) SummaryRecord {
	return SummaryRecord{
		Date:             s.Date,
		TotalHits:        s.TotalHits,
		ActiveSlugsCount: s.ActiveSlugsCount,
		TopSlugs:         s.TopSlugs,
		GeneratedAt:      s.GeneratedAt,
	}
}
