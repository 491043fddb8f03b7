// Usage aggregator endpoints.
//
//   - GET /api/cron/{job}             (run a scheduled job)
//   - GET /api/stats/summary/{date}   (one day)
//   - GET /api/stats/summaries        (archived history)
package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/http/middleware"
	"github.com/tbourn/go-callback-handler/internal/utils"
)

// JobDailySummary is the cron job rolling up yesterday's counters.
const JobDailySummary = "daily-summary"

// ListSummariesResponse wraps archived summaries, newest first.
type ListSummariesResponse struct {
	Summaries []domain.DailySummary `json:"summaries"`
}

// Cron godoc
// @ID          cron
// @Summary     Run a scheduled job
// @Description Runs the daily summary for yesterday (UTC). When a cron secret is configured the call
// @Description must carry it as a bearer token.
// @Tags        Stats
// @Produce     json
//
// @Param       job            path    string  true   "Job name"  Enums(daily-summary)
// @Param       Authorization  header  string  false  "Bearer cron secret"
//
// @Success     200  {object}  domain.DailySummary
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or wrong cron secret"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown job"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/cron/{job} [get]
func (h *Handlers) Cron(c *gin.Context) {
	if h.opts.CronSecret != "" {
		got := middleware.BearerToken(c)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.CronSecret)) != 1 {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "cron secret required")
			return
		}
	}
	if job := c.Param("job"); job != JobDailySummary {
		fail(c, http.StatusNotFound, ErrCodeUnknownJob, "unknown job "+job)
		return
	}
	sum, err := h.svc.Stats.GenerateDailySummary(c.Request.Context(), h.svc.Stats.Yesterday())
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().
		Str("date", sum.Date).
		Int64("total_hits", sum.TotalHits).
		Int("active_slugs", sum.ActiveSlugsCount).
		Msg("daily summary generated")
	ok(c, http.StatusOK, sum)
}

// Summary godoc
// @ID          getSummary
// @Summary     Daily summary
// @Description Returns the summary of one UTC day.
// @Tags        Stats
// @Produce     json
//
// @Param       date  path  string  true  "UTC day (YYYY-MM-DD)"  example(2024-01-01)
//
// @Success     200  {object}  domain.DailySummary
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid date"
// @Failure     404  {object}  handlers.ErrorResponse  "No summary for that day"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/stats/summary/{date} [get]
func (h *Handlers) Summary(c *gin.Context) {
	sum, err := h.svc.Stats.Summary(c.Request.Context(), c.Param("date"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sum)
}

// Summaries godoc
// @ID          listSummaries
// @Summary     Summary history
// @Description Lists archived daily summaries, newest first.
// @Tags        Stats
// @Produce     json
//
// @Param       limit  query  int  false  "Max items"  minimum(1) maximum(366) default(30)
//
// @Success     200  {object}  handlers.ListSummariesResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/stats/summaries [get]
func (h *Handlers) Summaries(c *gin.Context) {
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 30), 1, 366)
	list, err := h.svc.Stats.History(c.Request.Context(), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSummariesResponse{Summaries: list})
}
