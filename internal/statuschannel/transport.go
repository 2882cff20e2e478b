package statuschannel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the subset of a websocket connection the channel uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes stream connections.
// The production implementation wraps gorilla/websocket; tests substitute a
// scripted dialer to drive connects, closes, and inbound frames.
type Dialer interface {
	DialContext(ctx context.Context, target string) (Conn, error)
}

// TokenSource mints the short-lived credential embedded in each connect
// target. It is consulted fresh before every attempt; tokens are never
// reused across attempts.
type TokenSource interface {
	StreamToken(ctx context.Context, projectID string) (string, error)
}

// WebsocketDialer is the production Dialer backed by gorilla/websocket
type WebsocketDialer struct {
	// HandshakeTimeout bounds the websocket upgrade; zero means 10s
	HandshakeTimeout time.Duration
}

// DialContext opens a websocket connection to the given target
func (d *WebsocketDialer) DialContext(ctx context.Context, target string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}

	return conn, nil
}

// StreamURL builds the websocket target for a project status stream.
// http(s) base URLs are rewritten to the ws(s) scheme and the credential is
// carried as a query parameter.
func StreamURL(baseURL, projectID, token string) string {
	base := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return fmt.Sprintf("%s/ws/projects/%s?token=%s", base, url.PathEscape(projectID), url.QueryEscape(token))
}
