package widget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
)

// View is the widget's visible pane. Exactly one at a time.
type View string

const (
	ViewForm    View = "form"
	ViewTickets View = "tickets"
	ViewChat    View = "chat"
)

var (
	// ErrSubmitInFlight blocks a second submit while one is running.
	ErrSubmitInFlight = errors.New("a submission is already in progress")
	// ErrUploadsInProgress blocks submission until every selected file
	// has finished uploading or failed out of the list.
	ErrUploadsInProgress = errors.New("Please wait for file uploads to complete")
	// ErrInvalidEmail blocks the ticket search before any request fires.
	ErrInvalidEmail = errors.New("Please enter a valid email address")
)

// ValidationError carries the per-field messages of a failed form
// submit. Nothing reaches the network when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	for _, f := range []string{FieldName, FieldEmail, FieldSubject, FieldMessage} {
		if msg, ok := e.Fields[f]; ok {
			return msg
		}
	}
	return "Please fix the highlighted fields"
}

// Widget is one embeddable support-widget instance. All state lives on
// the instance; New never registers anything global.
type Widget struct {
	cfg    Config
	client *apiClient
	logger *slog.Logger

	mu          sync.Mutex
	open        bool
	view        View
	form        TicketForm
	attachments *AttachmentManager
	chat        *ChatSession
	submitting  bool
}

// New builds a widget from the config. The config is copied; later
// changes to the caller's value have no effect.
func New(cfg Config) (*Widget, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := newAPIClient(cfg.APIURL, cfg.HTTPClient)
	w := &Widget{
		cfg:    cfg,
		client: client,
		logger: logger,
		view:   ViewForm,
	}
	w.attachments = newAttachmentManager(client, logger)
	w.form = TicketForm{Name: cfg.UserName, Email: cfg.UserEmail}
	return w, nil
}

// Config returns a copy of the effective configuration.
func (w *Widget) Config() Config { return w.cfg }

// Attachments exposes the ticket form's attachment manager.
func (w *Widget) Attachments() *AttachmentManager { return w.attachments }

// Form returns a pointer to the mutable form state. Callers set fields
// and run validation through it.
func (w *Widget) Form() *TicketForm { return &w.form }

// View reports the currently visible pane.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// IsOpen reports whether the modal is open.
func (w *Widget) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Open shows the modal on the form view.
func (w *Widget) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	w.view = ViewForm
}

// Close hides the modal and discards everything created since it
// opened: chat session (live updates included), attachment drafts, and
// entered form fields. Pre-filled identity survives.
func (w *Widget) Close() {
	w.mu.Lock()
	chat := w.chat
	w.chat = nil
	w.open = false
	w.view = ViewForm
	w.form = TicketForm{Name: w.cfg.UserName, Email: w.cfg.UserEmail}
	w.submitting = false
	w.mu.Unlock()

	if chat != nil {
		chat.Close()
	}
	w.attachments.Reset()
}

// ShowTickets switches to the ticket list, closing any open chat.
func (w *Widget) ShowTickets() {
	w.mu.Lock()
	chat := w.chat
	w.chat = nil
	w.view = ViewTickets
	w.mu.Unlock()
	if chat != nil {
		chat.Close()
	}
}

// ShowForm switches back to the new-ticket form, closing any open chat.
func (w *Widget) ShowForm() {
	w.mu.Lock()
	chat := w.chat
	w.chat = nil
	w.view = ViewForm
	w.mu.Unlock()
	if chat != nil {
		chat.Close()
	}
}

// SubmitResult is the confirmation of a created ticket.
type SubmitResult struct {
	TicketNumber        string
	Message             string
	AttachmentsUploaded int
}

type createTicketPayload struct {
	Name            string                 `json:"name"`
	Email           string                 `json:"email"`
	Subject         string                 `json:"subject"`
	Message         string                 `json:"message"`
	Category        string                 `json:"category,omitempty"`
	Priority        string                 `json:"priority,omitempty"`
	APIKey          string                 `json:"api_key,omitempty"`
	PageURL         string                 `json:"page_url,omitempty"`
	Referrer        string                 `json:"referrer,omitempty"`
	TicketID        string                 `json:"ticket_id,omitempty"`
	FileAttachments []AttachmentDescriptor `json:"file_attachments"`
}

// SubmitTicket validates the form and posts it with the uploaded
// attachment descriptors. Validation failures and unfinished uploads
// block before any request; on server failure the form keeps its values
// for retry.
func (w *Widget) SubmitTicket(ctx context.Context) (*SubmitResult, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	w.submitting = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}()

	if fieldErrs := w.form.Validate(); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	if w.attachments.HasUnfinished() {
		return nil, ErrUploadsInProgress
	}

	payload := createTicketPayload{
		Name:            w.form.Name,
		Email:           w.form.Email,
		Subject:         w.form.Subject,
		Message:         w.form.Message,
		Category:        w.form.Category,
		Priority:        w.form.Priority,
		APIKey:          w.cfg.APIKey,
		PageURL:         w.cfg.PageURL,
		Referrer:        w.cfg.Referrer,
		TicketID:        w.attachments.TicketID(),
		FileAttachments: w.attachments.Uploaded(),
	}
	var data struct {
		Message string `json:"message"`
		Ticket  struct {
			TicketNumber string `json:"ticket_number"`
		} `json:"ticket"`
		AttachmentsUploaded int `json:"attachments_uploaded"`
	}
	if err := w.client.postJSON(ctx, "/tickets", payload, &data); err != nil {
		return nil, err
	}

	// Success: clear everything for the next ticket.
	w.mu.Lock()
	w.form = TicketForm{Name: w.cfg.UserName, Email: w.cfg.UserEmail}
	w.mu.Unlock()
	w.attachments.Reset()

	return &SubmitResult{
		TicketNumber:        data.Ticket.TicketNumber,
		Message:             data.Message,
		AttachmentsUploaded: data.AttachmentsUploaded,
	}, nil
}

// ListTickets fetches the requester's tickets, newest first. The email
// is validated locally; a bad one never reaches the network.
func (w *Widget) ListTickets(ctx context.Context, email string) ([]Ticket, error) {
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	var data struct {
		Tickets []Ticket `json:"tickets"`
		Total   int64    `json:"total"`
	}
	if err := w.client.getJSON(ctx, "/tickets?email="+url.QueryEscape(email), &data); err != nil {
		return nil, err
	}
	return data.Tickets, nil
}

// GetTicket fetches one ticket with its full message thread.
func (w *Widget) GetTicket(ctx context.Context, email, ticketNumber string) (*Ticket, error) {
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	var data struct {
		Ticket Ticket `json:"ticket"`
	}
	path := fmt.Sprintf("/tickets?email=%s&ticket_number=%s", url.QueryEscape(email), url.QueryEscape(ticketNumber))
	if err := w.client.getJSON(ctx, path, &data); err != nil {
		return nil, err
	}
	return &data.Ticket, nil
}

// OpenChat switches to the chat view for a ticket, loading its thread
// and starting exactly one live-update source. Any previously open chat
// is torn down first, so a second open never leaves two sources running.
func (w *Widget) OpenChat(ctx context.Context, ticket Ticket, email string) (*ChatSession, error) {
	w.mu.Lock()
	old := w.chat
	w.chat = nil
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}

	session := newChatSession(w.client, w.logger, w.cfg.PushURL, w.cfg.UserName, ticket, email)
	if err := session.open(ctx); err != nil {
		// Failed to load: stay on (or return to) the ticket list.
		session.Close()
		w.mu.Lock()
		w.view = ViewTickets
		w.mu.Unlock()
		return nil, err
	}

	w.mu.Lock()
	w.chat = session
	w.view = ViewChat
	w.mu.Unlock()
	return session, nil
}

// Chat returns the open chat session, or nil.
func (w *Widget) Chat() *ChatSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chat
}
