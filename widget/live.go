package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// PollInterval is the fixed delay between message-list polls.
const PollInterval = 3 * time.Second

// LiveUpdateSource detects new chat messages for an open session. A
// session runs at most one at a time; Stop must be safe to call more
// than once and on a source that never started.
type LiveUpdateSource interface {
	Start(ctx context.Context) error
	Stop()
}

// PollTimer refetches the message list on a fixed interval. Per-tick
// errors are logged and swallowed: the next tick retries anyway.
type PollTimer struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) ([]Message, error)
	Apply    func(msgs []Message)
	Logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (p *PollTimer) Start(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = PollInterval
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				msgs, err := p.Fetch(ctx)
				if err != nil {
					logger.Debug("poll: fetch failed", "error", err)
					continue
				}
				p.Apply(msgs)
			}
		}
	}()
	return nil
}

func (p *PollTimer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

type pushEvent struct {
	Type     string   `json:"type"`
	TicketID uint64   `json:"ticket_id"`
	Message  *Message `json:"message,omitempty"`
}

// PushChannel subscribes to the websocket push endpoint for one ticket.
// A failed dial is returned from Start so the caller can fall back to
// polling immediately; a stream error after that fires OnDown so the
// caller can fall back then too. Stop never fires OnDown.
type PushChannel struct {
	URL       string // full ws endpoint, e.g. wss://host/api/v1/ws
	TicketID  uint64
	OnMessage func(msg Message)
	OnDown    func()
	Logger    *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopped bool
}

func (p *PushChannel) Start(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	url := fmt.Sprintf("%s?ticket_id=%d", p.URL, p.TicketID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("push subscribe: %w", err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()

	go func() {
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				p.mu.Lock()
				stopped := p.stopped
				p.mu.Unlock()
				if stopped {
					return
				}
				logger.Debug("push: stream dropped", "error", err)
				if p.OnDown != nil {
					p.OnDown()
				}
				return
			}
			var ev pushEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				logger.Debug("push: bad event", "error", err)
				continue
			}
			if ev.Type == "message.created" && ev.Message != nil {
				p.OnMessage(*ev.Message)
			}
		}
	}()
	return nil
}

func (p *PushChannel) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
