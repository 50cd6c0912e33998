package model

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// ValidStatus reports whether s is one of the known ticket statuses.
func ValidStatus(s string) bool {
	switch TicketStatus(s) {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

type SenderRole string

const (
	SenderUser  SenderRole = "user"
	SenderAgent SenderRole = "agent"
)

type Ticket struct {
	ID           uint64       `gorm:"primaryKey" json:"id"`
	TicketNumber string       `gorm:"type:varchar(32);uniqueIndex;not null" json:"ticket_number"`
	Subject      string       `gorm:"type:varchar(255);not null" json:"subject"`
	Category     string       `gorm:"type:varchar(64);index" json:"category,omitempty"`
	Priority     string       `gorm:"type:varchar(32);index" json:"priority,omitempty"`
	Status       TicketStatus `gorm:"type:varchar(32);index;not null" json:"status"`
	Email        string       `gorm:"type:varchar(255);index;not null" json:"email"`
	Name         string       `gorm:"type:varchar(255)" json:"name,omitempty"`
	PageURL      string       `gorm:"type:text" json:"page_url,omitempty"`
	Referrer     string       `gorm:"type:text" json:"referrer,omitempty"`

	Messages []Message `gorm:"foreignKey:TicketID" json:"messages,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Message struct {
	ID         uint64     `gorm:"primaryKey" json:"id"`
	TicketID   uint64     `gorm:"index;not null" json:"ticket_id"`
	SenderRole SenderRole `gorm:"type:varchar(16);not null" json:"sender_role"`
	SenderName string     `gorm:"type:varchar(255)" json:"sender_name,omitempty"`
	// Body is nullable: attachment-only messages carry no text.
	Body *string `gorm:"type:text" json:"message"`

	Attachments []Attachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	MessageID uint64 `gorm:"index;not null" json:"-"`
	FileURL   string `gorm:"type:text;not null" json:"url"`
	FilePath  string `gorm:"type:text;not null" json:"-"`
	FileName  string `gorm:"type:varchar(255)" json:"name"`
	FileSize  int64  `json:"size"`
	FileType  string `gorm:"type:varchar(128)" json:"type"`

	CreatedAt time.Time `json:"created_at"`
}
