// Package widget is the embeddable support-desk client: ticket form,
// ticket list, and per-ticket chat with live updates, speaking the
// quickdesk REST API.
package widget

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// Position anchors the launcher button in a host page corner.
type Position string

const (
	BottomRight Position = "bottom-right"
	BottomLeft  Position = "bottom-left"
	TopRight    Position = "top-right"
	TopLeft     Position = "top-left"
)

// Config is fixed at construction; New copies it and the instance never
// mutates it afterwards.
type Config struct {
	// APIURL is the API base, e.g. "https://desk.example.com/api/v1".
	APIURL string
	APIKey string

	ButtonText string
	Position   Position
	ZIndex     int

	// Pre-filled requester identity. When set, the matching form fields
	// are read-only but still validated and submitted.
	UserID    string
	UserName  string
	UserEmail string

	// PushURL is the websocket endpoint for live chat updates, e.g.
	// "wss://desk.example.com/api/v1/ws". Empty disables push; chat then
	// polls for new messages.
	PushURL string

	// PageURL and Referrer describe the embedding page and ride along on
	// ticket creation.
	PageURL  string
	Referrer string

	// HTTPClient overrides the default pooled client. Mostly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("widget: APIURL is required")
	}
	switch c.Position {
	case "", BottomRight, BottomLeft, TopRight, TopLeft:
	default:
		return fmt.Errorf("widget: unknown position %q", c.Position)
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ButtonText == "" {
		out.ButtonText = "Support"
	}
	if out.Position == "" {
		out.Position = BottomRight
	}
	if out.ZIndex == 0 {
		out.ZIndex = 999999
	}
	return out
}
