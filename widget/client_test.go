package widget

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDecodeEnvelope_PlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream timed out"))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, nil)
	err := c.getJSON(context.Background(), "/tickets", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "upstream timed out" || apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("got %+v", apiErr)
	}
}

func TestDecodeEnvelope_ErrorWithCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"error":{"message":"invalid api key","code":"unauthorized"}}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, nil)
	err := c.postJSON(context.Background(), "/tickets", map[string]string{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "invalid api key" || apiErr.Code != "unauthorized" {
		t.Errorf("got %+v", apiErr)
	}
}

func TestDecodeEnvelope_FailureWithoutMessageUsesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, nil)
	err := c.getJSON(context.Background(), "/tickets", nil)
	if err == nil || err.Error() != "Something went wrong. Please try again." {
		t.Errorf("got %v", err)
	}
}

func TestDecodeEnvelope_EmptyBodyUsesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newAPIClient(srv.URL, nil)
	err := c.getJSON(context.Background(), "/tickets", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message == "" {
		t.Error("empty error body should fall back to the HTTP status")
	}
}

func TestBaseURL_TrailingSlashTrimmed(t *testing.T) {
	c := newAPIClient("http://example.com/api/v1/", nil)
	if c.baseURL != "http://example.com/api/v1" {
		t.Errorf("got %q", c.baseURL)
	}
}
