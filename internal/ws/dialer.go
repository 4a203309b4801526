package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/gridiron-viewer/internal/conn"
)

const defaultReadLimit = 1 << 20 // 1MB

// Dialer opens the real-time channel to the simulation server.
type Dialer struct {
	HTTPClient *http.Client
	ReadLimit  int64
}

func (d Dialer) Dial(ctx context.Context, url string) (conn.Transport, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	c.SetReadLimit(limit)
	return &Transport{c: c}, nil
}

type Transport struct {
	c *websocket.Conn
}

func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.c.Read(ctx)
	if err != nil {
		// Treat clean close/going-away as normal:
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, fmt.Errorf("%w: %v", conn.ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (t *Transport) Write(ctx context.Context, data []byte) error {
	return t.c.Write(ctx, websocket.MessageText, data)
}

func (t *Transport) Close() error {
	return t.c.Close(websocket.StatusNormalClosure, "bye")
}
