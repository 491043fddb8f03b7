// Live capture notifications.
//
//   - GET /api/record/{slug}/stream   (server-sent events)
//   - GET /ws/record/{slug}           (websocket)
//
// Both deliver {"slug","id"} events for new captures and ping every
// KeepAlive. Events are best effort; viewers re-fetch /api/record/{slug}
// on every event and periodically.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-callback-handler/internal/http/middleware"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the router's CORS policy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Stream godoc
// @ID          streamRequests
// @Summary     Live capture events (SSE)
// @Description Emits a "capture" event per new capture and a keepalive comment every 15s.
// @Tags        Viewer
// @Produce     text/event-stream
//
// @Param       slug  path  string  true  "Slug"  example(orders-webhook-0101)
//
// @Success     200  {object}  domain.CaptureEvent
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Failure     503  {object}  handlers.ErrorResponse  "Live updates disabled"
// @Router      /api/record/{slug}/stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	slug := c.Param("slug")
	if !h.authorizeViewer(c, slug) {
		return
	}
	if h.svc.Live == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "live updates disabled")
		return
	}

	sub := h.svc.Live.Subscribe(slug)
	defer h.svc.Live.Unsubscribe(sub)

	hdr := c.Writer.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				return
			}
			c.SSEvent("capture", ev)
		case <-ticker.C:
			if _, err := c.Writer.WriteString(": keepalive\n\n"); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
		c.Writer.Flush()
	}
}

// Socket godoc
// @ID          socketRequests
// @Summary     Live capture events (websocket)
// @Description Upgrades to a websocket that receives one JSON message per new capture.
// @Tags        Viewer
//
// @Param       slug  path  string  true  "Slug"  example(orders-webhook-0101)
//
// @Success     101  {object}  domain.CaptureEvent
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.ErrorResponse  "Forbidden"
// @Router      /ws/record/{slug} [get]
func (h *Handlers) Socket(c *gin.Context) {
	slug := c.Param("slug")
	if !h.authorizeViewer(c, slug) {
		return
	}
	if h.svc.Live == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "live updates disabled")
		return
	}

	lg := middleware.LoggerFrom(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.svc.Live.Subscribe(slug)
	defer h.svc.Live.Unsubscribe(sub)

	// The reader only watches for the close frame; viewers send nothing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					lg.Debug().Err(err).Msg("websocket closed")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(h.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.C:
			if !open {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
