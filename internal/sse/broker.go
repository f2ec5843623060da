// Package sse broadcasts catalog change notifications as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	TypeCatalogCreated = "catalog.created"
	TypeCatalogUpdated = "catalog.updated"
	TypeCatalogDeleted = "catalog.deleted"
	TypeSchemasUpdated = "schemas.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CatalogEvent is the payload of the catalog.* events.
type CatalogEvent struct {
	ModelID string `json:"modelId"`
}

type catalogEventReq struct {
	kind    string
	modelID string
}

type subscribeReq struct {
	ch    chan []byte
	since uint64
}

// keepAlive is the interval of comment lines that keep idle proxies from
// closing the stream.
var keepAlive = 30 * time.Second

// replaySize is how many recent events a reconnecting client can catch up on.
const replaySize = 64

type frame struct {
	id  uint64
	raw []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the client set, the event sequence and the
// schemas.updated throttle; public methods talk to it over channels.
type Broker struct {
	schemasMin time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	catalogCh     chan catalogEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits schemas.updated at most once per
// throttle interval.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		schemasMin:    throttle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		catalogCh:     make(chan catalogEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSchemas time.Time
	var seq uint64
	recent := make([]frame, 0, replaySize)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))
		if len(recent) == replaySize {
			recent = append(recent[:0], recent[1:]...)
		}
		recent = append(recent, frame{id: seq, raw: raw})

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case req := <-b.subscribeCh:
			clients[req.ch] = struct{}{}
			if req.since == 0 {
				continue
			}
			for _, f := range recent {
				if f.id <= req.since {
					continue
				}
				select {
				case req.ch <- f.raw:
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.catalogCh:
			typ, ok := catalogEventType(req.kind)
			if !ok {
				continue
			}
			broadcast(Event{Type: typ, Data: CatalogEvent{ModelID: req.modelID}})

			now := time.Now()
			if now.Sub(lastSchemas) >= b.schemasMin {
				lastSchemas = now
				broadcast(Event{Type: TypeSchemasUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

func catalogEventType(kind string) (string, bool) {
	switch kind {
	case "created":
		return TypeCatalogCreated, true
	case "updated":
		return TypeCatalogUpdated, true
	case "deleted":
		return TypeCatalogDeleted, true
	}
	return "", false
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeSince(0)
}

// SubscribeSince adds a client that first receives the buffered events
// after lastID. Zero means no replay.
func (b *Broker) SubscribeSince(lastID uint64) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscribeReq{ch: ch, since: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishCatalogEvent publishes a catalog change followed, at most once per
// throttle interval, by schemas.updated. kind is one of "created",
// "updated", "deleted"; anything else is ignored.
func (b *Broker) PublishCatalogEvent(kind, modelID string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.catalogCh <- catalogEventReq{kind: kind, modelID: modelID}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A malformed header means no replay.
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch := b.SubscribeSince(lastID)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
