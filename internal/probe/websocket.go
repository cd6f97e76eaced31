package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/Shugur-Network/relaymap/internal/errors"
	"github.com/gorilla/websocket"
)

// WebSocketProber treats a completed WebSocket handshake as reachable.
// The connection is closed right after the handshake.
type WebSocketProber struct {
	dialer *websocket.Dialer
}

// NewWebSocketProber creates a prober with its own dialer. Handshake time is
// bounded by the probe context only.
func NewWebSocketProber() *WebSocketProber {
	return &WebSocketProber{
		dialer: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Probe dials url and closes the connection on every path.
func (p *WebSocketProber) Probe(ctx context.Context, url string) error {
	conn, resp, err := p.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return errors.ProbeFailure(url, err)
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	return nil
}
