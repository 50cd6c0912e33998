package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickdesk/quickdesk/internal/errs"
	"github.com/quickdesk/quickdesk/internal/kafka"
	"github.com/quickdesk/quickdesk/internal/model"
	"github.com/quickdesk/quickdesk/internal/respond"
	"github.com/quickdesk/quickdesk/internal/service"
)

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail applies the same RFC-light rule the widget uses client-side.
func ValidEmail(s string) bool {
	return len(s) <= 255 && emailRx.MatchString(s)
}

type TicketHandler struct {
	svc      service.TicketServicer
	producer kafka.TicketEventProducer
	apiKey   string
	logger   *slog.Logger
}

func NewTicketHandler(svc service.TicketServicer, producer kafka.TicketEventProducer, apiKey string, logger *slog.Logger) *TicketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketHandler{svc: svc, producer: producer, apiKey: apiKey, logger: logger}
}

// AttachmentDescriptor is the uploaded-file metadata the client echoes back
// from the upload endpoint.
type AttachmentDescriptor struct {
	FileURL  string `json:"file_url"`
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
}

func (d AttachmentDescriptor) model() model.Attachment {
	return model.Attachment{
		FileURL:  d.FileURL,
		FilePath: d.FilePath,
		FileName: d.FileName,
		FileSize: d.FileSize,
		FileType: d.FileType,
	}
}

type createTicketRequest struct {
	Name            string                 `json:"name"`
	Email           string                 `json:"email"`
	Subject         string                 `json:"subject"`
	Message         string                 `json:"message"`
	Category        string                 `json:"category"`
	Priority        string                 `json:"priority"`
	APIKey          string                 `json:"api_key"`
	PageURL         string                 `json:"page_url"`
	Referrer        string                 `json:"referrer"`
	TicketID        string                 `json:"ticket_id"` // shared upload-batch id
	FileAttachments []AttachmentDescriptor `json:"file_attachments"`
}

func (r *createTicketRequest) validate() string {
	name := strings.TrimSpace(r.Name)
	if len(name) < 2 || len(name) > 255 {
		return "Name must be between 2 and 255 characters"
	}
	if !ValidEmail(strings.TrimSpace(r.Email)) {
		return "Please enter a valid email address"
	}
	subject := strings.TrimSpace(r.Subject)
	if len(subject) < 3 || len(subject) > 255 {
		return "Subject must be between 3 and 255 characters"
	}
	msg := strings.TrimSpace(r.Message)
	if len(msg) < 10 || len(msg) > 5000 {
		return "Message must be between 10 and 5000 characters"
	}
	return ""
}

func ticketEventPayload(t *model.Ticket) map[string]interface{} {
	if t == nil {
		return nil
	}
	return map[string]interface{}{
		"ticket_id":     int64(t.ID),
		"ticket_number": t.TicketNumber,
		"email":         t.Email,
		"subject":       t.Subject,
		"category":      t.Category,
		"priority":      t.Priority,
		"status":        string(t.Status),
	}
}

// emitEvent produces a kafka event fire-and-forget: it should go out
// even if the request context is cancelled, but bounded by a timeout.
func emitEvent(producer kafka.TicketEventProducer, event string, payload map[string]interface{}) {
	if producer == nil {
		return
	}
	eventCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		defer cancel()
		producer.ProduceTicketEvent(eventCtx, event, payload)
	}()
}

// Create handles POST /tickets.
func (h *TicketHandler) Create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.apiKey != "" && req.APIKey != h.apiKey {
		respond.ErrorCode(c, http.StatusUnauthorized, "invalid api key", "unauthorized")
		return
	}
	if msg := req.validate(); msg != "" {
		respond.ErrorCode(c, http.StatusBadRequest, msg, "validation")
		return
	}

	body := strings.TrimSpace(req.Message)
	attachments := make([]model.Attachment, 0, len(req.FileAttachments))
	for _, d := range req.FileAttachments {
		attachments = append(attachments, d.model())
	}
	first := &model.Message{
		SenderRole:  model.SenderUser,
		SenderName:  strings.TrimSpace(req.Name),
		Body:        &body,
		Attachments: attachments,
	}
	ticket := &model.Ticket{
		Subject:  strings.TrimSpace(req.Subject),
		Category: req.Category,
		Priority: req.Priority,
		Status:   model.TicketStatusOpen,
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
		PageURL:  req.PageURL,
		Referrer: req.Referrer,
	}
	if err := h.svc.Create(c.Request.Context(), ticket, first); err != nil {
		h.logger.Error("ticket: create", "error", err)
		respond.Error(c, http.StatusInternalServerError, "failed to create ticket")
		return
	}
	emitEvent(h.producer, "ticket.created", ticketEventPayload(ticket))

	respond.OK(c, http.StatusCreated, gin.H{
		"message":              "Ticket created successfully",
		"ticket":               gin.H{"ticket_number": ticket.TicketNumber, "id": ticket.ID, "status": ticket.Status},
		"attachments_uploaded": len(attachments),
	})
}

// List handles GET /tickets?email=...&ticket_number=...&limit=&offset=.
// With ticket_number it returns one ticket with its message thread;
// otherwise the requester's tickets, newest first.
func (h *TicketHandler) List(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if !ValidEmail(email) {
		respond.ErrorCode(c, http.StatusBadRequest, "Please enter a valid email address", "validation")
		return
	}

	if number := strings.TrimSpace(c.Query("ticket_number")); number != "" {
		t, err := h.svc.GetByNumber(c.Request.Context(), email, number)
		if err != nil {
			h.respondLookupError(c, err)
			return
		}
		respond.OK(c, http.StatusOK, gin.H{"ticket": t})
		return
	}

	limit, offset := 0, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	items, total, err := h.svc.ListByEmail(c.Request.Context(), email, limit, offset)
	if err != nil {
		h.logger.Error("ticket: list", "error", err)
		respond.Error(c, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"tickets": items, "total": total})
}

type updateTicketRequest struct {
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
	Category *string `json:"category,omitempty"`
	Subject  *string `json:"subject,omitempty"`
}

// Update handles PUT /tickets/:id (agent-side; requires the api key).
func (h *TicketHandler) Update(c *gin.Context) {
	if h.apiKey != "" && c.GetHeader("X-API-Key") != h.apiKey {
		respond.ErrorCode(c, http.StatusUnauthorized, "invalid api key", "unauthorized")
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	changes := make(map[string]interface{})
	if req.Status != nil {
		if !model.ValidStatus(*req.Status) {
			respond.ErrorCode(c, http.StatusBadRequest, "invalid status: must be 'open', 'in_progress', 'resolved', or 'closed'", "validation")
			return
		}
		changes["status"] = *req.Status
	}
	if req.Priority != nil {
		changes["priority"] = *req.Priority
	}
	if req.Category != nil {
		changes["category"] = *req.Category
	}
	if req.Subject != nil {
		changes["subject"] = *req.Subject
	}
	if len(changes) == 0 {
		respond.Error(c, http.StatusBadRequest, "no changes")
		return
	}
	t, err := h.svc.Update(c.Request.Context(), id, changes)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	emitEvent(h.producer, "ticket.updated", ticketEventPayload(t))
	respond.OK(c, http.StatusOK, gin.H{"ticket": t})
}

func (h *TicketHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		respond.ErrorCode(c, http.StatusNotFound, "ticket not found", "not_found")
	case errors.Is(err, errs.ErrEmailMismatch):
		respond.ErrorCode(c, http.StatusForbidden, "email does not match ticket", "forbidden")
	default:
		h.logger.Error("ticket: lookup", "error", err)
		respond.Error(c, http.StatusInternalServerError, "internal error")
	}
}
