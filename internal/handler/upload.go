package handler

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/quickdesk/quickdesk/internal/respond"
	"github.com/quickdesk/quickdesk/internal/storage"
)

// MaxUploadSize caps a single attachment at 10 MB.
const MaxUploadSize = 10 << 20

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
	"image/svg+xml",
}

// AllowedFile checks the upload allow-list by extension and declared type.
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

type UploadHandler struct {
	store  storage.BlobStore
	logger *slog.Logger
}

func NewUploadHandler(store storage.BlobStore, logger *slog.Logger) *UploadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadHandler{store: store, logger: logger}
}

type uploadData struct {
	FileURL       string `json:"file_url"`
	FileURLPublic string `json:"file_url_public,omitempty"`
	FilePath      string `json:"file_path"`
	FileName      string `json:"file_name"`
	FileSize      int64  `json:"file_size"`
	FileType      string `json:"file_type"`
	TicketID      string `json:"ticket_id,omitempty"`
}

// Upload handles POST /upload: multipart field "file" plus an optional
// "ticket_id" tying a batch of files together before the ticket exists.
// The first upload of a batch mints the id; the client reuses it.
func (h *UploadHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "file field is required")
		return
	}
	if fh.Size > MaxUploadSize {
		respond.ErrorCode(c, http.StatusRequestEntityTooLarge, "file exceeds the 10MB limit", "file_too_large")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if !AllowedFile(fh.Filename, contentType) {
		respond.ErrorCode(c, http.StatusUnsupportedMediaType, "file type is not allowed", "file_type")
		return
	}

	batchID := strings.TrimSpace(c.PostForm("ticket_id"))
	if batchID == "" {
		batchID = ulid.Make().String()
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("upload: open multipart file", "error", err)
		respond.Error(c, http.StatusInternalServerError, "failed to read upload")
		return
	}
	defer f.Close()

	key := storage.BuildKey(batchID, fh.Filename)
	url, err := h.store.Put(c.Request.Context(), key, contentType, f)
	if err != nil {
		h.logger.Error("upload: store blob", "error", err, "key", key)
		respond.Error(c, http.StatusInternalServerError, "failed to store upload")
		return
	}

	respond.OK(c, http.StatusOK, uploadData{
		FileURL:       url,
		FileURLPublic: url,
		FilePath:      key,
		FileName:      fh.Filename,
		FileSize:      fh.Size,
		FileType:      contentType,
		TicketID:      batchID,
	})
}

type deleteUploadRequest struct {
	FilePath string `json:"file_path" binding:"required"`
}

// Delete handles DELETE /upload with JSON {file_path}. Best-effort: a
// missing blob still reports success.
func (h *UploadHandler) Delete(c *gin.Context) {
	var req deleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "file_path is required")
		return
	}
	if err := h.store.Delete(c.Request.Context(), req.FilePath); err != nil {
		h.logger.Error("upload: delete blob", "error", err, "key", req.FilePath)
		respond.Error(c, http.StatusInternalServerError, "failed to delete file")
		return
	}
	respond.OK(c, http.StatusOK, gin.H{"deleted": true})
}
