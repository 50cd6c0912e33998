// Package push delivers new-message events to connected widget clients
// over websockets, one subscription per open chat session.
package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quickdesk/quickdesk/internal/model"
	"github.com/quickdesk/quickdesk/internal/respond"
)

// Event is the wire format pushed to subscribers.
type Event struct {
	Type     string         `json:"type"` // "message.created" | "ticket.updated"
	TicketID uint64         `json:"ticket_id"`
	Message  *model.Message `json:"message,omitempty"`
}

type subscriber struct {
	id   string
	send chan []byte
}

// Hub fans events out to websocket subscribers keyed by ticket id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]map[string]*subscriber
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uint64]map[string]*subscriber),
		logger: logger,
	}
}

func (h *Hub) add(ticketID uint64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[ticketID] == nil {
		h.subs[ticketID] = make(map[string]*subscriber)
	}
	h.subs[ticketID][s.id] = s
}

func (h *Hub) remove(ticketID uint64, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[ticketID]; ok {
		if _, ok := set[s.id]; ok {
			delete(set, s.id)
			close(s.send)
		}
		if len(set) == 0 {
			delete(h.subs, ticketID)
		}
	}
}

// SubscriberCount reports how many clients are attached to a ticket.
func (h *Hub) SubscriberCount(ticketID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ticketID])
}

// Broadcast sends the event to every subscriber of its ticket. Slow clients
// are skipped rather than blocking the caller.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("push: marshal event", "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs[ev.TicketID] {
		select {
		case s.send <- data:
		default:
			h.logger.Debug("push: dropped event for slow subscriber", "subscriber", s.id)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The widget embeds on arbitrary customer pages.
		return true
	},
}

// Handler upgrades GET /ws?ticket_id=N and streams events until the client
// disconnects.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, err := strconv.ParseUint(c.Query("ticket_id"), 10, 64)
		if err != nil || ticketID == 0 {
			respond.Error(c, http.StatusBadRequest, "invalid ticket_id")
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Error("push: upgrade failed", "error", err)
			return
		}
		sub := &subscriber{id: uuid.NewString(), send: make(chan []byte, 16)}
		h.add(ticketID, sub)
		h.logger.Debug("push: subscriber connected", "subscriber", sub.id, "ticket_id", ticketID)

		done := make(chan struct{})
		// Read pump: only there to detect close.
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case data, ok := <-sub.send:
				if !ok {
					conn.Close()
					return
				}
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.remove(ticketID, sub)
					conn.Close()
					return
				}
			case <-done:
				h.remove(ticketID, sub)
				conn.Close()
				return
			}
		}
	}
}
