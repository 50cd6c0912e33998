package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/quickdesk/quickdesk/internal/errs"
	"github.com/quickdesk/quickdesk/internal/model"
	"gorm.io/gorm"
)

// TicketServicer is the handler-facing interface (swapped for a mock in tests).
type TicketServicer interface {
	Create(ctx context.Context, t *model.Ticket, firstMessage *model.Message) error
	GetByNumber(ctx context.Context, email, number string) (*model.Ticket, error)
	ListByEmail(ctx context.Context, email string, limit, offset int) ([]model.Ticket, int64, error)
	Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error)
}

type TicketService struct {
	db *gorm.DB
}

func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

// NewTicketNumber mints a human-readable ticket number, e.g. TKT-3F8A2C1D.
func NewTicketNumber() string {
	id := ulid.Make().String()
	return "TKT-" + strings.ToUpper(id[len(id)-8:])
}

// Create persists the ticket together with its opening message (and that
// message's attachments) in one transaction.
func (s *TicketService) Create(ctx context.Context, t *model.Ticket, firstMessage *model.Message) error {
	if t.TicketNumber == "" {
		t.TicketNumber = NewTicketNumber()
	}
	if t.Status == "" {
		t.Status = model.TicketStatusOpen
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(t).Error; err != nil {
			return err
		}
		if firstMessage != nil {
			firstMessage.TicketID = t.ID
			if err := tx.Create(firstMessage).Error; err != nil {
				return err
			}
			t.Messages = []model.Message{*firstMessage}
		}
		return nil
	})
}

// GetByNumber loads a ticket with its message thread. The requester email must
// match: ticket numbers are guessable, the email acts as the access key.
func (s *TicketService) GetByNumber(ctx context.Context, email, number string) (*model.Ticket, error) {
	var t model.Ticket
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("messages.created_at ASC") }).
		Preload("Messages.Attachments").
		Where("ticket_number = ?", number).
		First(&t).Error
	if err != nil {
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

func (s *TicketService) ListByEmail(ctx context.Context, email string, limit, offset int) ([]model.Ticket, int64, error) {
	var items []model.Ticket
	var total int64
	tx := s.db.WithContext(ctx).Model(&model.Ticket{}).Where("lower(email) = lower(?)", email)
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	if err := tx.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *TicketService) Update(ctx context.Context, id uint64, changes map[string]interface{}) (*model.Ticket, error) {
	var t model.Ticket
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	if st, ok := changes["status"]; ok && st == string(model.TicketStatusClosed) && t.ClosedAt == nil {
		now := time.Now()
		changes["closed_at"] = &now
	}
	if err := s.db.WithContext(ctx).Model(&t).Updates(changes).Error; err != nil {
		return nil, err
	}
	return &t, nil
}
