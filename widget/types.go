package widget

import "time"

// Ticket is the client-side view of a support ticket.
type Ticket struct {
	ID           uint64    `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	Subject      string    `json:"subject"`
	Category     string    `json:"category,omitempty"`
	Priority     string    `json:"priority,omitempty"`
	Status       string    `json:"status"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message is one entry in a ticket's thread. Body is nil for
// attachment-only messages.
type Message struct {
	ID          uint64       `json:"id"`
	TicketID    uint64       `json:"ticket_id"`
	SenderRole  string       `json:"sender_role"`
	SenderName  string       `json:"sender_name,omitempty"`
	Body        *string      `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Attachment is the display metadata of a stored file.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// AttachmentDescriptor is the upload-endpoint metadata echoed back when
// creating tickets and messages.
type AttachmentDescriptor struct {
	FileURL  string `json:"file_url"`
	FilePath string `json:"file_path"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
	FileType string `json:"file_type"`
}
