// Package notify implements the capture notification fan-out. Publisher
// announces every new capture on a per-slug Redis channel; Hub holds one
// pattern subscription per process and relays events to the websocket and
// SSE viewers connected to that process. Delivery is at-most-once: a slow
// subscriber loses events instead of holding up the others, and viewers
// re-fetch the ledger as their consistency backstop.
//
// Design notes:
//   - Channels are named capture:{slug}. Payloads are CaptureEvent JSON and
//     carry only the slug and record id; viewers load the record itself from
//     the ledger.
//   - Hub holds a single PSUBSCRIBE capture:* per process, independent of the
//     number of connected viewers.
//   - Each Subscription has a small buffered channel. Broadcast never blocks
//     on it; a full buffer drops the event for that subscriber only.
//   - Malformed payloads are logged and skipped.
//   - When Run returns every open Subscription is closed, which ends the
//     websocket and SSE handlers reading from it.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-callback-handler/internal/domain"
	"github.com/tbourn/go-callback-handler/internal/repo"
)

// channelPattern matches every per-slug capture channel.
const channelPattern = "capture:*"

// subscriberBuffer is the per-viewer backlog before events are dropped.
const subscriberBuffer = 16

// Publisher sends capture events through Redis pub/sub.
type Publisher struct {
	RDB redis.Cmdable
}

// Publish sends ev to the slug's channel. Zero receivers is not an error.
func (p *Publisher) Publish(ctx context.Context, ev domain.CaptureEvent) error {
	_, err := repo.PublishCapture(ctx, p.RDB, ev)
	return err
}

// Subscription is one viewer's event stream for a slug. C is closed when the
// subscription ends.
type Subscription struct {
	Slug string
	C    <-chan domain.CaptureEvent

	ch   chan domain.CaptureEvent
	once sync.Once
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Hub relays Redis capture events to local subscribers, keyed by slug.
type Hub struct {
	rdb redis.UniversalClient
	log zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*Subscription]struct{}

	ready chan struct{}
	done  chan struct{}
}

// NewHub creates a Hub reading from rdb. Call Run to start relaying.
func NewHub(rdb redis.UniversalClient, log zerolog.Logger) *Hub {
	return &Hub{
		rdb:   rdb,
		log:   log.With().Str("component", "notify").Logger(),
		rooms: make(map[string]map[*Subscription]struct{}),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run subscribes to every capture channel and relays until ctx is done, then
// closes all subscriptions.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	defer h.closeAll()

	ps := h.rdb.PSubscribe(ctx, channelPattern)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	close(h.ready)
	h.log.Info().Str("pattern", channelPattern).Msg("notification hub subscribed")

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var ev domain.CaptureEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil || ev.Slug == "" {
				h.log.Warn().Str("channel", m.Channel).Msg("dropping malformed capture event")
				continue
			}
			h.Broadcast(ev)
		}
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Wait blocks until Run has returned.
func (h *Hub) Wait() { <-h.done }

// Subscribe registers a viewer for slug.
func (h *Hub) Subscribe(slug string) *Subscription {
	ch := make(chan domain.CaptureEvent, subscriberBuffer)
	sub := &Subscription{Slug: slug, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[slug] == nil {
		h.rooms[slug] = make(map[*Subscription]struct{})
	}
	h.rooms[slug][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if room := h.rooms[sub.Slug]; room != nil {
		delete(room, sub)
		if len(room) == 0 {
			delete(h.rooms, sub.Slug)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Broadcast delivers ev to the local subscribers of ev.Slug without
// blocking; a full subscriber misses the event.
func (h *Hub) Broadcast(ev domain.CaptureEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.rooms[ev.Slug] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Debug().Str("slug", ev.Slug).Msg("subscriber backlog full, event dropped")
		}
	}
}

// Subscribers returns the number of local subscribers of slug.
func (h *Hub) Subscribers(slug string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[slug])
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range h.rooms {
		for sub := range room {
			sub.close()
		}
	}
	h.rooms = make(map[string]map[*Subscription]struct{})
}
