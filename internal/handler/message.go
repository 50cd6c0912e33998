package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quickdesk/quickdesk/internal/errs"
	"github.com/quickdesk/quickdesk/internal/kafka"
	"github.com/quickdesk/quickdesk/internal/model"
	"github.com/quickdesk/quickdesk/internal/push"
	"github.com/quickdesk/quickdesk/internal/respond"
	"github.com/quickdesk/quickdesk/internal/service"
)

type MessageHandler struct {
	svc      service.MessageServicer
	hub      *push.Hub
	producer kafka.TicketEventProducer
	apiKey   string
	logger   *slog.Logger
}

func NewMessageHandler(svc service.MessageServicer, hub *push.Hub, producer kafka.TicketEventProducer, apiKey string, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{svc: svc, hub: hub, producer: producer, apiKey: apiKey, logger: logger}
}

type createMessageRequest struct {
	Email       string                 `json:"email"`
	Message     string                 `json:"message"`
	SenderName  string                 `json:"sender_name"`
	SenderRole  string                 `json:"sender_role"` // "agent" requires the api key
	Attachments []AttachmentDescriptor `json:"attachments"`
}

// Create handles POST /tickets/:id/messages. A message needs a body of at
// least 3 characters or at least one attachment.
func (h *MessageHandler) Create(c *gin.Context) {
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid ticket id")
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if !ValidEmail(email) {
		respond.ErrorCode(c, http.StatusBadRequest, "Please enter a valid email address", "validation")
		return
	}
	body := strings.TrimSpace(req.Message)
	if len(body) > 0 && len(body) < 3 {
		respond.ErrorCode(c, http.StatusBadRequest, "Message must be at least 3 characters", "validation")
		return
	}
	if body == "" && len(req.Attachments) == 0 {
		respond.ErrorCode(c, http.StatusBadRequest, "Message or attachment is required", "validation")
		return
	}

	role := model.SenderUser
	if req.SenderRole == string(model.SenderAgent) {
		if h.apiKey == "" || c.GetHeader("X-API-Key") != h.apiKey {
			respond.ErrorCode(c, http.StatusUnauthorized, "agent replies require the api key", "unauthorized")
			return
		}
		role = model.SenderAgent
	}

	attachments := make([]model.Attachment, 0, len(req.Attachments))
	for _, d := range req.Attachments {
		attachments = append(attachments, d.model())
	}
	msg := &model.Message{
		SenderRole:  role,
		SenderName:  strings.TrimSpace(req.SenderName),
		Attachments: attachments,
	}
	if body != "" {
		msg.Body = &body
	}

	created, err := h.svc.Append(c.Request.Context(), ticketID, email, msg)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(push.Event{Type: "message.created", TicketID: ticketID, Message: created})
	}
	emitEvent(h.producer, "message.created", map[string]interface{}{
		"ticket_id":   int64(ticketID),
		"message_id":  int64(created.ID),
		"sender_role": string(created.SenderRole),
	})

	respond.OK(c, http.StatusCreated, gin.H{"message": created})
}

// List handles GET /tickets/:id/messages?email=... (the widget's poll target
// when it holds a ticket id rather than a number).
func (h *MessageHandler) List(c *gin.Context) {
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid ticket id")
		return
	}
	email := strings.TrimSpace(c.Query("email"))
	if !ValidEmail(email) {
		respond.ErrorCode(c, http.StatusBadRequest, "Please enter a valid email address", "validation")
		return
	}
	msgs, err := h.svc.List(c.Request.Context(), ticketID, email)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrTicketNotFound):
		respond.ErrorCode(c, http.StatusNotFound, "ticket not found", "not_found")
	case errors.Is(err, errs.ErrEmailMismatch):
		respond.ErrorCode(c, http.StatusForbidden, "email does not match ticket", "forbidden")
	default:
		h.logger.Error("message: lookup", "error", err)
		respond.Error(c, http.StatusInternalServerError, "internal error")
	}
}
