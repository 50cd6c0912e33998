package service

import (
	"context"
	"errors"
	"strings"

	"github.com/quickdesk/quickdesk/internal/errs"
	"github.com/quickdesk/quickdesk/internal/model"
	"gorm.io/gorm"
)

// MessageServicer is the handler-facing interface for the chat thread.
type MessageServicer interface {
	Append(ctx context.Context, ticketID uint64, email string, msg *model.Message) (*model.Message, error)
	List(ctx context.Context, ticketID uint64, email string) ([]model.Message, error)
}

type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

func (s *MessageService) ticketForEmail(ctx context.Context, ticketID uint64, email string) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	if !strings.EqualFold(t.Email, email) {
		return nil, errs.ErrEmailMismatch
	}
	return &t, nil
}

// Append stores a message and its attachments in one transaction and reopens
// resolved tickets when the requester replies.
func (s *MessageService) Append(ctx context.Context, ticketID uint64, email string, msg *model.Message) (*model.Message, error) {
	t, err := s.ticketForEmail(ctx, ticketID, email)
	if err != nil {
		return nil, err
	}
	msg.TicketID = t.ID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		if msg.SenderRole == model.SenderUser && t.Status == model.TicketStatusResolved {
			return tx.Model(t).Updates(map[string]interface{}{"status": model.TicketStatusOpen, "closed_at": nil}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) List(ctx context.Context, ticketID uint64, email string) ([]model.Message, error) {
	if _, err := s.ticketForEmail(ctx, ticketID, email); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Preload("Attachments").
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
