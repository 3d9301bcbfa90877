package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"numsync/entity"
	"numsync/observability"
)

// pushFrame is one websocket message from the indexer. The cursor lets a
// reconnecting subscriber resume without losing frames.
type pushFrame struct {
	Cursor string        `json:"cursor"`
	Entity entity.Record `json:"entity"`
}

// Subscribe registers a push subscription for records matching clause. The
// returned channel closes when the subscription ends; cancel tears it down.
// Transient connection loss is handled internally: the subscriber redials
// with capped backoff and resumes from the last seen cursor, so subscriptions
// live as long as the caller wants them to.
func (c *Client) Subscribe(ctx context.Context, clause string) (<-chan entity.Record, func(), error) {
	if c.wsEndpoint == "" {
		return nil, nil, fmt.Errorf("client: websocket endpoint not configured")
	}
	subID := uuid.NewString()
	subCtx, cancel := context.WithCancel(ctx)

	conn, err := c.dial(subCtx, clause, "")
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("client: subscribe: %w", err)
	}

	updates := make(chan entity.Record, 16)
	go func() {
		defer close(updates)
		defer cancel()
		log := c.log.With("subscription", subID)
		cursor := ""
		backoff := c.reconnectMin
		for {
			cursor = c.pump(subCtx, conn, cursor, updates)
			_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
			if subCtx.Err() != nil {
				return
			}
			// Connection lost; resume from the last cursor.
			for {
				observability.MirrorMetrics().Reconnects.Inc()
				log.Warn("subscription stream lost, reconnecting", "backoff", backoff)
				select {
				case <-subCtx.Done():
					return
				case <-time.After(backoff):
				}
				var err error
				conn, err = c.dial(subCtx, clause, cursor)
				if err == nil {
					backoff = c.reconnectMin
					break
				}
				if backoff *= 2; backoff > c.reconnectMax {
					backoff = c.reconnectMax
				}
			}
		}
	}()
	return updates, cancel, nil
}

// pump reads frames until the connection breaks or ctx ends, forwarding
// decoded records. It returns the last cursor seen.
func (c *Client) pump(ctx context.Context, conn *websocket.Conn, cursor string, updates chan<- entity.Record) string {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return cursor
		}
		var frame pushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// A malformed frame poisons only itself.
			c.log.Warn("discarding malformed push frame", "err", err)
			continue
		}
		if frame.Cursor != "" {
			cursor = frame.Cursor
		}
		select {
		case updates <- frame.Entity:
		case <-ctx.Done():
			return cursor
		}
	}
}

func (c *Client) dial(ctx context.Context, clause, cursor string) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("client: parse ws endpoint: %w", err)
	}
	q := endpoint.Query()
	if strings.TrimSpace(clause) != "" {
		q.Set("clause", clause)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint.RawQuery = q.Encode()

	opts := &websocket.DialOptions{}
	if c.authToken != "" {
		opts.HTTPHeader = map[string][]string{"Authorization": {"Bearer " + c.authToken}}
	}
	conn, _, err := websocket.Dial(ctx, endpoint.String(), opts)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", endpoint.Host, err)
	}
	return conn, nil
}
