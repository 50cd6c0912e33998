package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// uploadServer fakes the upload endpoint: mints a batch id per request
// unless the client sends one, fails any file whose name contains
// "bad", records delete paths.
type uploadServer struct {
	*httptest.Server
	uploads int32
	deletes int32

	lastDeletePath atomic.Value

	mu            sync.Mutex
	seenTicketIDs []string
	failDelete    bool
}

func (s *uploadServer) ticketIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenTicketIDs...)
}

func newUploadServer(t *testing.T) *uploadServer {
	t.Helper()
	s := &uploadServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			n := atomic.AddInt32(&s.uploads, 1)
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			_, fh, err := r.FormFile("file")
			if err != nil {
				t.Errorf("missing file field: %v", err)
				return
			}
			s.mu.Lock()
			s.seenTicketIDs = append(s.seenTicketIDs, r.FormValue("ticket_id"))
			s.mu.Unlock()
			if strings.Contains(fh.Filename, "bad") {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   map[string]string{"message": "failed to store upload"},
				})
				return
			}
			ticketID := r.FormValue("ticket_id")
			if ticketID == "" {
				ticketID = fmt.Sprintf("batch-%d", n)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": map[string]any{
					"file_url":  "http://files/" + fh.Filename,
					"file_path": "tickets/" + ticketID + "/" + fh.Filename,
					"file_name": fh.Filename,
					"file_size": fh.Size,
					"file_type": fh.Header.Get("Content-Type"),
					"ticket_id": ticketID,
				},
			})
		case http.MethodDelete:
			atomic.AddInt32(&s.deletes, 1)
			var req struct {
				FilePath string `json:"file_path"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			s.lastDeletePath.Store(req.FilePath)
			if s.failDelete {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   map[string]string{"message": "failed to delete file"},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]bool{"deleted": true}})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func testFile(name string, size int64) File {
	return File{Name: name, Size: size, ContentType: "image/png", Content: strings.NewReader("content")}
}

func TestSelect_CapsAtFiveFiles(t *testing.T) {
	m := newAttachmentManager(newAPIClient("http://unused", nil), testLogger())
	var files []File
	for i := 0; i < 6; i++ {
		files = append(files, testFile(fmt.Sprintf("f%d.png", i), 100))
	}
	accepted, rejected := m.Select(files...)
	if len(accepted) != 5 {
		t.Errorf("expected 5 accepted, got %d", len(accepted))
	}
	if len(rejected) != 0 {
		t.Errorf("excess files should be ignored without error, got %v", rejected)
	}
}

func TestSelect_RejectsOversizeBeforeNetwork(t *testing.T) {
	srv := newUploadServer(t)
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	accepted, rejected := m.Select(testFile("huge.png", MaxAttachmentSize+1))
	if len(accepted) != 0 || len(rejected) != 1 {
		t.Fatalf("oversize file should be rejected, got %d accepted %d rejected", len(accepted), len(rejected))
	}
	m.UploadAll(context.Background())
	if n := atomic.LoadInt32(&srv.uploads); n != 0 {
		t.Errorf("no network call should fire for a rejected file, saw %d", n)
	}
}

func TestSelect_RejectsDisallowedType(t *testing.T) {
	m := newAttachmentManager(newAPIClient("http://unused", nil), testLogger())
	_, rejected := m.Select(File{Name: "tool.exe", Size: 100, ContentType: "application/octet-stream"})
	if len(rejected) != 1 {
		t.Fatalf("expected rejection, got %v", rejected)
	}
	if !strings.Contains(rejected[0].Error(), "not an allowed file type") {
		t.Errorf("got %v", rejected[0])
	}
}

func TestUploadAll_FailureDoesNotBlockSiblings(t *testing.T) {
	srv := newUploadServer(t)
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	m.Select(testFile("ok1.png", 100), testFile("bad.png", 100), testFile("ok2.png", 100))
	errs := m.UploadAll(context.Background())
	if len(errs) != 1 {
		t.Fatalf("expected 1 upload error, got %v", errs)
	}
	uploaded := m.Uploaded()
	if len(uploaded) != 2 {
		t.Fatalf("expected 2 uploaded, got %d", len(uploaded))
	}
	for _, d := range uploaded {
		if strings.Contains(d.FileName, "bad") {
			t.Error("failed file must not appear in the payload list")
		}
	}
	if len(m.Drafts()) != 2 {
		t.Errorf("failed draft should be removed from the list, have %d", len(m.Drafts()))
	}
}

func TestUploadSequential_SharedTicketIDFirstWriteWins(t *testing.T) {
	srv := newUploadServer(t)
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	m.Select(testFile("a.png", 100), testFile("b.png", 100))
	if errs := m.UploadSequential(context.Background()); len(errs) != 0 {
		t.Fatalf("uploads failed: %v", errs)
	}
	if got := m.TicketID(); got != "batch-1" {
		t.Errorf("first upload should claim the batch id, got %q", got)
	}
	if ids := srv.ticketIDs(); len(ids) != 2 || ids[0] != "" || ids[1] != "batch-1" {
		t.Errorf("second upload should reuse the claimed id, saw %v", ids)
	}
}

func TestRemove_UploadedTriggersRemoteDelete(t *testing.T) {
	srv := newUploadServer(t)
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	accepted, _ := m.Select(testFile("a.png", 100))
	if errs := m.UploadAll(context.Background()); len(errs) != 0 {
		t.Fatalf("upload failed: %v", errs)
	}
	if err := m.Remove(context.Background(), accepted[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := atomic.LoadInt32(&srv.deletes); n != 1 {
		t.Errorf("expected 1 delete call, got %d", n)
	}
	if got := srv.lastDeletePath.Load(); got != "tickets/batch-1/a.png" {
		t.Errorf("delete path %v", got)
	}
	if len(m.Drafts()) != 0 {
		t.Error("draft should be gone after remove")
	}
}

func TestRemove_DeleteFailureStillRemovesLocally(t *testing.T) {
	srv := newUploadServer(t)
	srv.failDelete = true
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	accepted, _ := m.Select(testFile("a.png", 100))
	if errs := m.UploadAll(context.Background()); len(errs) != 0 {
		t.Fatalf("upload failed: %v", errs)
	}
	err := m.Remove(context.Background(), accepted[0].ID)
	if err == nil {
		t.Error("failed remote delete should surface an error")
	}
	if len(m.Drafts()) != 0 {
		t.Error("local removal is optimistic and must happen regardless")
	}
}

func TestRemove_PendingSkipsNetwork(t *testing.T) {
	srv := newUploadServer(t)
	m := newAttachmentManager(newAPIClient(srv.URL, nil), testLogger())

	accepted, _ := m.Select(testFile("a.png", 100))
	if err := m.Remove(context.Background(), accepted[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if n := atomic.LoadInt32(&srv.deletes); n != 0 {
		t.Errorf("pending draft removal should not call the server, saw %d", n)
	}
}
