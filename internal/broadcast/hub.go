// Package broadcast fans evaluation results out to WebSocket subscribers.
//
// A single goroutine owns the subscriber registry; subscribe, unsubscribe and
// publish requests reach it over channels, so no lock guards the map.
package broadcast

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/liamcoop/rulesets/internal/logger"
)

// DefaultBuffer is the per-subscriber queue length used when none is configured
const DefaultBuffer = 16

const writeTimeout = 10 * time.Second

type subscription struct {
	rulesetID string
	connID    string
	ch        chan []byte
}

type message struct {
	rulesetID string
	data      []byte
}

type countRequest struct {
	rulesetID string
	reply     chan int
}

// Hub routes published messages to the subscribers of a ruleset
type Hub struct {
	buffer int

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan message
	count       chan countRequest
	done        chan struct{}
}

// NewHub creates a hub; call Run to start it
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer:      buffer,
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan message, buffer*4),
		count:       make(chan countRequest),
		done:        make(chan struct{}),
	}
}

// Run processes hub requests until ctx is cancelled, then closes every
// subscriber channel
func (h *Hub) Run(ctx context.Context) {
	subs := make(map[string]map[string]chan []byte)
	defer func() {
		for _, conns := range subs {
			for _, ch := range conns {
				close(ch)
			}
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.subscribe:
			conns, ok := subs[s.rulesetID]
			if !ok {
				conns = make(map[string]chan []byte)
				subs[s.rulesetID] = conns
			}
			conns[s.connID] = s.ch

		case s := <-h.unsubscribe:
			conns := subs[s.rulesetID]
			if ch, ok := conns[s.connID]; ok {
				close(ch)
				delete(conns, s.connID)
				if len(conns) == 0 {
					delete(subs, s.rulesetID)
				}
			}

		case m := <-h.publish:
			for connID, ch := range subs[m.rulesetID] {
				select {
				case ch <- m.data:
				default:
					logger.Debug("Dropping message for slow subscriber",
						"ruleset_id", m.rulesetID, "conn_id", connID)
				}
			}

		case req := <-h.count:
			req.reply <- len(subs[req.rulesetID])
		}
	}
}

// Publish queues data for every subscriber of rulesetID. It never blocks:
// when the hub is backed up or stopped the message is dropped and false
// is returned.
func (h *Hub) Publish(rulesetID string, data []byte) bool {
	select {
	case h.publish <- message{rulesetID: rulesetID, data: data}:
		return true
	default:
		return false
	}
}

// Subscribers returns the number of live subscribers for rulesetID
func (h *Hub) Subscribers(rulesetID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{rulesetID: rulesetID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Subscribe registers a new subscriber and returns its message channel and a
// cancel func. The channel is closed after cancel or when the hub stops.
func (h *Hub) Subscribe(rulesetID string) (<-chan []byte, func(), error) {
	s := subscription{
		rulesetID: rulesetID,
		connID:    uuid.NewString(),
		ch:        make(chan []byte, h.buffer),
	}
	select {
	case h.subscribe <- s:
	case <-h.done:
		return nil, nil, errors.New("broadcast hub stopped")
	}

	cancel := func() {
		select {
		case h.unsubscribe <- s:
		case <-h.done:
		}
	}
	return s.ch, cancel, nil
}

// ServeWS upgrades the request to a WebSocket and streams every message
// published for rulesetID until the client disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, rulesetID string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", "ruleset_id", rulesetID, "error", err)
		return
	}
	defer conn.CloseNow()

	msgs, cancel, err := h.Subscribe(rulesetID)
	if err != nil {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer cancel()

	logger.Debug("WebSocket subscriber connected", "ruleset_id", rulesetID)

	// Clients only listen; CloseRead handles control frames and reports disconnects
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				logger.Debug("WebSocket write failed", "ruleset_id", rulesetID, "error", err)
				return
			}
		}
	}
}
