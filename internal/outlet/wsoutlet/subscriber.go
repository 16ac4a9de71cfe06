package wsoutlet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/srg/ellsl/internal/outlet"
)

// Subscriber is the consumer side of a WebSocket outlet
type Subscriber struct {
	conn *websocket.Conn
	info outlet.StreamInfo
}

// Subscribe connects to an outlet URL and reads its stream description
func Subscribe(ctx context.Context, url string) (*Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	kind, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read stream info: %w", err)
	}
	if kind != websocket.TextMessage {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected first message type %d", kind)
	}

	var info outlet.StreamInfo
	if err := json.Unmarshal(data, &info); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to decode stream info: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	return &Subscriber{conn: conn, info: info}, nil
}

// Info returns the description sent by the outlet
func (s *Subscriber) Info() outlet.StreamInfo {
	return s.info
}

// Next blocks for the next sample; a zero timeout waits forever
func (s *Subscriber) Next(timeout time.Duration) (values []float64, timestamp float64, err error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	_ = s.conn.SetReadDeadline(deadline)

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, 0, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		return DecodeFrame(data)
	}
}

// Close leaves the outlet
func (s *Subscriber) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
