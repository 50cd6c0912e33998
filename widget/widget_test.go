package widget

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestWidget(t *testing.T, srvURL string) *Widget {
	t.Helper()
	w, err := New(Config{APIURL: srvURL, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func validForm(w *Widget) {
	f := w.Form()
	f.Name = "Jo Smith"
	f.Email = "jo@example.com"
	f.Subject = "Broken page"
	f.Message = "The checkout page keeps erroring out"
}

func TestNew_RequiresAPIURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("empty APIURL should be rejected")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	w := newTestWidget(t, "http://example.com")
	cfg := w.Config()
	if cfg.ButtonText != "Support" || cfg.Position != BottomRight || cfg.ZIndex == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestNew_RejectsUnknownPosition(t *testing.T) {
	if _, err := New(Config{APIURL: "http://x", Position: "center"}); err == nil {
		t.Error("unknown position should be rejected")
	}
}

func TestSubmitTicket_InvalidFormNeverHitsNetwork(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	w.Form().Email = "jo@example.com" // everything else empty

	_, err := w.SubmitTicket(context.Background())
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Fields[FieldName] == "" || verr.Fields[FieldSubject] == "" || verr.Fields[FieldMessage] == "" {
		t.Errorf("missing field errors: %v", verr.Fields)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("invalid form must not issue a request, saw %d", n)
	}
}

func TestSubmitTicket_ServerErrorShownVerbatimAndFormKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"message": "Subject too long"},
		})
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	validForm(w)

	_, err := w.SubmitTicket(context.Background())
	if err == nil || err.Error() != "Subject too long" {
		t.Errorf("expected verbatim server message, got %v", err)
	}
	if w.Form().Subject != "Broken page" {
		t.Error("form values must survive a failed submit")
	}
}

func TestSubmitTicket_SuccessResetsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload createTicketPayload
		json.NewDecoder(r.Body).Decode(&payload)
		if payload.Email != "jo@example.com" {
			t.Errorf("payload email %q", payload.Email)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"message":              "Ticket created successfully",
				"ticket":               map[string]any{"ticket_number": "TKT-ABC12345"},
				"attachments_uploaded": 0,
			},
		})
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	validForm(w)

	res, err := w.SubmitTicket(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.TicketNumber != "TKT-ABC12345" {
		t.Errorf("ticket number %q", res.TicketNumber)
	}
	if w.Form().Subject != "" || w.Form().Message != "" {
		t.Error("form should reset after success")
	}
}

func TestSubmitTicket_BlockedWhileUploadsUnfinished(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	validForm(w)
	w.Attachments().Select(testFile("a.png", 100)) // selected, never uploaded

	if _, err := w.SubmitTicket(context.Background()); !errors.Is(err, ErrUploadsInProgress) {
		t.Errorf("expected ErrUploadsInProgress, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("no request should fire, saw %d", n)
	}
}

func TestSubmitTicket_InFlightGuard(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		<-release
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"message": "ok", "ticket": map[string]any{"ticket_number": "TKT-1"}},
		})
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	validForm(w)

	done := make(chan error, 1)
	go func() {
		_, err := w.SubmitTicket(context.Background())
		done <- err
	}()
	<-arrived

	if _, err := w.SubmitTicket(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Errorf("second submit should be blocked, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first submit failed: %v", err)
	}
}

func TestListTickets_InvalidEmailNeverHitsNetwork(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	_, err := w.ListTickets(context.Background(), "bad-email")
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if err.Error() != "Please enter a valid email address" {
		t.Errorf("inline message %q", err.Error())
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("no request should fire, saw %d", n)
	}
}

func TestListTickets_ReturnsServerOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("email"); got != "jo@example.com" {
			t.Errorf("email query %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"tickets": []map[string]any{
					{"id": 2, "ticket_number": "TKT-2", "subject": "Newer", "status": "open", "email": "jo@example.com"},
					{"id": 1, "ticket_number": "TKT-1", "subject": "Older", "status": "closed", "email": "jo@example.com"},
				},
				"total": 2,
			},
		})
	}))
	defer srv.Close()

	w := newTestWidget(t, srv.URL)
	tickets, err := w.ListTickets(context.Background(), "jo@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 2 || tickets[0].TicketNumber != "TKT-2" {
		t.Errorf("server order not preserved: %+v", tickets)
	}
}

func TestViewController_Transitions(t *testing.T) {
	w := newTestWidget(t, "http://example.com")
	if w.View() != ViewForm {
		t.Errorf("initial view %q", w.View())
	}
	w.Open()
	if !w.IsOpen() || w.View() != ViewForm {
		t.Error("open should land on the form")
	}
	w.ShowTickets()
	if w.View() != ViewTickets {
		t.Errorf("view %q", w.View())
	}
	w.Close()
	if w.IsOpen() || w.View() != ViewForm {
		t.Error("close should reset to the form view")
	}
}

func TestClose_KeepsPrefilledIdentity(t *testing.T) {
	w, err := New(Config{APIURL: "http://example.com", UserName: "Jo", UserEmail: "jo@example.com", Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	w.Form().Subject = "typed"
	w.Close()
	if w.Form().Subject != "" {
		t.Error("entered fields should clear on close")
	}
	if w.Form().Name != "Jo" || w.Form().Email != "jo@example.com" {
		t.Error("pre-filled identity should survive close")
	}
}
