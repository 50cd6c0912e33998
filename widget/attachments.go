package widget

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// MaxAttachments caps one ticket or one outgoing chat message.
	MaxAttachments = 5
	// MaxAttachmentSize is 10 MB per file.
	MaxAttachmentSize = 10 << 20
)

var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".pdf": true, ".doc": true, ".docx": true, ".xls": true,
	".xlsx": true, ".ppt": true, ".pptx": true, ".txt": true, ".csv": true,
}

var allowedMimePrefixes = []string{
	"image/",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"text/plain",
	"text/csv",
}

// AllowedFile mirrors the server's allow-list so bad files never reach
// the network.
func AllowedFile(name, contentType string) bool {
	if !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, p := range allowedMimePrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// File is a user-selected file handed to the attachment manager.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// UploadStatus tracks a draft through its upload.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusUploading UploadStatus = "uploading"
	StatusUploaded  UploadStatus = "uploaded"
	StatusFailed    UploadStatus = "failed"
)

// AttachmentDraft is the client-side bookkeeping for one file between
// selection and confirmed upload.
type AttachmentDraft struct {
	ID       string
	FileName string
	FileSize int64
	FileType string
	Status   UploadStatus
	FileURL  string
	FilePath string
	Err      error

	content io.Reader
}

func (d *AttachmentDraft) descriptor() AttachmentDescriptor {
	return AttachmentDescriptor{
		FileURL:  d.FileURL,
		FilePath: d.FilePath,
		FileName: d.FileName,
		FileSize: d.FileSize,
		FileType: d.FileType,
	}
}

// AttachmentManager tracks selected files and their uploads for one
// ticket form or one chat composer. Uploads within a selection are
// independent: one failure never blocks the rest.
type AttachmentManager struct {
	client *apiClient
	logger *slog.Logger

	mu       sync.Mutex
	drafts   []*AttachmentDraft
	ticketID string // shared upload-batch id; first successful upload claims it
}

func newAttachmentManager(client *apiClient, logger *slog.Logger) *AttachmentManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentManager{client: client, logger: logger}
}

// Select validates and admits files. Files over the per-file size cap or
// outside the allow-list are rejected with a per-file error; files beyond
// the count cap are ignored without error. Accepted drafts start pending.
func (m *AttachmentManager) Select(files ...File) ([]*AttachmentDraft, []error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accepted []*AttachmentDraft
	var rejected []error
	for _, f := range files {
		if len(m.drafts) >= MaxAttachments {
			break
		}
		if f.Size > MaxAttachmentSize {
			rejected = append(rejected, fmt.Errorf("%s exceeds the 10MB limit", f.Name))
			continue
		}
		if !AllowedFile(f.Name, f.ContentType) {
			rejected = append(rejected, fmt.Errorf("%s is not an allowed file type", f.Name))
			continue
		}
		d := &AttachmentDraft{
			ID:       uuid.NewString(),
			FileName: f.Name,
			FileSize: f.Size,
			FileType: f.ContentType,
			Status:   StatusPending,
			content:  f.Content,
		}
		m.drafts = append(m.drafts, d)
		accepted = append(accepted, d)
	}
	return accepted, rejected
}

// UploadAll uploads every pending draft concurrently, one request per
// file. Failed drafts are dropped from the list; their errors come back
// for display.
func (m *AttachmentManager) UploadAll(ctx context.Context) []error {
	pending := m.takePending()

	var wg sync.WaitGroup
	errCh := make(chan error, len(pending))
	for _, d := range pending {
		wg.Add(1)
		go func(d *AttachmentDraft) {
			defer wg.Done()
			if err := m.upload(ctx, d); err != nil {
				errCh <- err
			}
		}(d)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}

// UploadSequential uploads pending drafts one at a time, in selection
// order. Used by the chat composer.
func (m *AttachmentManager) UploadSequential(ctx context.Context) []error {
	var errs []error
	for _, d := range m.takePending() {
		if err := m.upload(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *AttachmentManager) takePending() []*AttachmentDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*AttachmentDraft
	for _, d := range m.drafts {
		if d.Status == StatusPending {
			d.Status = StatusUploading
			pending = append(pending, d)
		}
	}
	return pending
}

func (m *AttachmentManager) upload(ctx context.Context, d *AttachmentDraft) error {
	m.mu.Lock()
	fields := map[string]string{}
	if m.ticketID != "" {
		fields["ticket_id"] = m.ticketID
	}
	m.mu.Unlock()

	var data struct {
		FileURL  string `json:"file_url"`
		FilePath string `json:"file_path"`
		FileName string `json:"file_name"`
		FileSize int64  `json:"file_size"`
		FileType string `json:"file_type"`
		TicketID string `json:"ticket_id"`
	}
	err := m.client.uploadFile(ctx, "/upload", d.FileName, d.FileType, d.content, fields, &data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		d.Status = StatusFailed
		d.Err = err
		m.removeLocked(d.ID)
		return fmt.Errorf("upload %s: %w", d.FileName, err)
	}
	d.Status = StatusUploaded
	d.FileURL = data.FileURL
	d.FilePath = data.FilePath
	if data.FileType != "" {
		d.FileType = data.FileType
	}
	// First successful upload claims the batch id; later completions,
	// whatever their network order, keep the first claim.
	if m.ticketID == "" && data.TicketID != "" {
		m.ticketID = data.TicketID
	}
	return nil
}

// Remove drops a draft from the list. Uploaded files also get a
// best-effort remote delete; the local removal happens regardless, and
// an error is reported only when that network call fails.
func (m *AttachmentManager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	var target *AttachmentDraft
	for _, d := range m.drafts {
		if d.ID == id {
			target = d
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return nil
	}
	m.removeLocked(id)
	uploaded := target.Status == StatusUploaded
	path := target.FilePath
	m.mu.Unlock()

	if !uploaded || path == "" {
		return nil
	}
	if err := m.client.deleteJSON(ctx, "/upload", map[string]string{"file_path": path}); err != nil {
		m.logger.Debug("attachment delete failed", "file", target.FileName, "error", err)
		return fmt.Errorf("delete %s: %w", target.FileName, err)
	}
	return nil
}

func (m *AttachmentManager) removeLocked(id string) {
	for i, d := range m.drafts {
		if d.ID == id {
			m.drafts = append(m.drafts[:i], m.drafts[i+1:]...)
			return
		}
	}
}

// Uploaded returns descriptors for every successfully uploaded draft, in
// selection order. This is the list submission payloads are built from.
func (m *AttachmentManager) Uploaded() []AttachmentDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AttachmentDescriptor
	for _, d := range m.drafts {
		if d.Status == StatusUploaded {
			out = append(out, d.descriptor())
		}
	}
	return out
}

// HasUnfinished reports whether any draft is still pending or uploading.
func (m *AttachmentManager) HasUnfinished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drafts {
		if d.Status == StatusPending || d.Status == StatusUploading {
			return true
		}
	}
	return false
}

// ClearPending drops drafts that never started uploading, keeping
// uploaded ones. Used after attachment-related send failures so the user
// can retry text-only.
func (m *AttachmentManager) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.drafts[:0]
	for _, d := range m.drafts {
		if d.Status != StatusPending {
			kept = append(kept, d)
		}
	}
	m.drafts = kept
}

// TicketID returns the shared upload-batch id, if one was claimed.
func (m *AttachmentManager) TicketID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticketID
}

// Drafts returns a snapshot of the current list.
func (m *AttachmentManager) Drafts() []*AttachmentDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AttachmentDraft, len(m.drafts))
	copy(out, m.drafts)
	return out
}

// Reset clears all drafts and the batch id.
func (m *AttachmentManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = nil
	m.ticketID = ""
}
