package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrMessageTooShort blocks chat sends with a sub-minimum body and no
// attachment, before any request is made.
var ErrMessageTooShort = errors.New("Message must be at least 3 characters")

// ChatSession is the transient state of one open ticket conversation:
// the loaded thread, the composer's attachment drafts, and exactly one
// live-update source.
type ChatSession struct {
	client     *apiClient
	logger     *slog.Logger
	pushURL    string
	senderName string

	ticket Ticket
	email  string

	pollInterval time.Duration

	mu          sync.Mutex
	messages    []Message
	seen        map[uint64]struct{}
	source      LiveUpdateSource
	attachments *AttachmentManager
	onUpdate    func()
}

func newChatSession(client *apiClient, logger *slog.Logger, pushURL, senderName string, ticket Ticket, email string) *ChatSession {
	return &ChatSession{
		client:       client,
		logger:       logger,
		pushURL:      pushURL,
		senderName:   senderName,
		ticket:       ticket,
		email:        email,
		pollInterval: PollInterval,
		seen:         make(map[uint64]struct{}),
		attachments:  newAttachmentManager(client, logger),
	}
}

// Ticket returns the ticket this session is attached to.
func (s *ChatSession) Ticket() Ticket { return s.ticket }

// Attachments exposes the composer's attachment manager.
func (s *ChatSession) Attachments() *AttachmentManager { return s.attachments }

// OnUpdate registers a callback invoked whenever the message list
// changes, from any goroutine.
func (s *ChatSession) OnUpdate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = fn
}

// Messages returns a snapshot of the loaded thread.
func (s *ChatSession) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *ChatSession) messagesPath() string {
	return fmt.Sprintf("/tickets/%d/messages?email=%s", s.ticket.ID, url.QueryEscape(s.email))
}

func (s *ChatSession) fetchMessages(ctx context.Context) ([]Message, error) {
	var data struct {
		Messages []Message `json:"messages"`
	}
	if err := s.client.getJSON(ctx, s.messagesPath(), &data); err != nil {
		return nil, err
	}
	return data.Messages, nil
}

// open loads the thread and starts the live-update source. Any source
// left from a previous session must already be stopped by the caller.
func (s *ChatSession) open(ctx context.Context) error {
	msgs, err := s.fetchMessages(ctx)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	s.mu.Lock()
	s.messages = msgs
	s.seen = make(map[uint64]struct{}, len(msgs))
	for _, m := range msgs {
		s.seen[m.ID] = struct{}{}
	}
	s.mu.Unlock()

	s.startLiveUpdates(ctx)
	return nil
}

// startLiveUpdates picks the single live-update source: push when a
// push endpoint is configured and the subscribe succeeds, polling
// otherwise. Subscription errors degrade silently, both at dial time
// and when an established stream later drops.
func (s *ChatSession) startLiveUpdates(ctx context.Context) {
	if s.pushURL != "" {
		push := &PushChannel{
			URL:       s.pushURL,
			TicketID:  s.ticket.ID,
			OnMessage: s.addMessage,
			Logger:    s.logger,
		}
		push.OnDown = func() {
			s.logger.Debug("chat: push stream dropped, polling instead")
			s.fallBackToPoll(ctx, push)
		}
		err := push.Start(ctx)
		if err == nil {
			s.setSource(push)
			return
		}
		s.logger.Debug("chat: push unavailable, polling instead", "error", err)
	}
	poll := s.newPollTimer()
	poll.Start(ctx)
	s.setSource(poll)
}

func (s *ChatSession) newPollTimer() *PollTimer {
	return &PollTimer{
		Interval: s.pollInterval,
		Fetch:    s.fetchMessages,
		Apply:    s.refresh,
		Logger:   s.logger,
	}
}

// fallBackToPoll replaces a dropped push channel with a poll timer, but
// only while that channel is still the session's current source. A
// session that was closed or re-sourced in the meantime is left alone,
// keeping the one-source invariant.
func (s *ChatSession) fallBackToPoll(ctx context.Context, dead LiveUpdateSource) {
	poll := s.newPollTimer()
	poll.Start(ctx)
	s.mu.Lock()
	if s.source != dead {
		s.mu.Unlock()
		poll.Stop()
		return
	}
	s.source = poll
	s.mu.Unlock()
	dead.Stop()
}

// setSource swaps the live-update source, stopping any previous one
// first so at most one is ever active.
func (s *ChatSession) setSource(src LiveUpdateSource) {
	s.mu.Lock()
	old := s.source
	s.source = src
	s.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// addMessage appends a pushed message, deduplicating by message id
// against the loaded thread.
func (s *ChatSession) addMessage(msg Message) {
	s.mu.Lock()
	if _, ok := s.seen[msg.ID]; ok {
		s.mu.Unlock()
		return
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	notify := s.onUpdate
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// refresh replaces the thread from a poll result, but only when the
// server reports more messages than we hold. Count comparison, not a
// diff.
func (s *ChatSession) refresh(msgs []Message) {
	s.mu.Lock()
	if len(msgs) <= len(s.messages) {
		s.mu.Unlock()
		return
	}
	s.messages = msgs
	s.seen = make(map[uint64]struct{}, len(msgs))
	for _, m := range msgs {
		s.seen[m.ID] = struct{}{}
	}
	notify := s.onUpdate
	s.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// Send posts a message to the ticket. The body must be at least 3
// characters unless at least one attachment rides along. Newly selected
// composer files upload sequentially first; previously uploaded but
// unsent files are merged in.
func (s *ChatSession) Send(ctx context.Context, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	hasDrafts := len(s.attachments.Drafts()) > 0
	if len(body) < 3 && !hasDrafts {
		return nil, ErrMessageTooShort
	}

	if errs := s.attachments.UploadSequential(ctx); len(errs) > 0 {
		s.attachments.ClearPending()
		return nil, fmt.Errorf("attachment upload failed: %w", errs[0])
	}
	descriptors := s.attachments.Uploaded()
	if len(body) < 3 && len(descriptors) == 0 {
		return nil, ErrMessageTooShort
	}

	payload := map[string]any{
		"email":       s.email,
		"message":     body,
		"sender_name": s.senderName,
		"attachments": descriptors,
	}
	var data struct {
		Message Message `json:"message"`
	}
	if err := s.client.postJSON(ctx, fmt.Sprintf("/tickets/%d/messages", s.ticket.ID), payload, &data); err != nil {
		if looksAttachmentRelated(err) {
			s.attachments.ClearPending()
		}
		return nil, err
	}

	s.addMessage(data.Message)
	s.attachments.Reset()
	return &data.Message, nil
}

func looksAttachmentRelated(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "attachment") || strings.Contains(msg, "file") || strings.Contains(msg, "upload")
}

// Close tears down the live-update source unconditionally and clears
// session state.
func (s *ChatSession) Close() {
	s.mu.Lock()
	src := s.source
	s.source = nil
	s.messages = nil
	s.seen = nil
	s.onUpdate = nil
	s.mu.Unlock()
	if src != nil {
		src.Stop()
	}
	s.attachments.Reset()
}
