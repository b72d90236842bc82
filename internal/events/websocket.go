package events

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
)

// Upgrader accepts websocket connections from any origin; the API is
// expected to sit behind a gateway that enforces CORS.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusFunc re-reads the current batch state.
type StatusFunc func(ctx context.Context) (*model.BatchState, error)

// Serve streams batch_status events for batchID over conn until the client
// disconnects or ctx ends. The current state is sent immediately, then on
// every commit and at least once per interval.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, batchID string, status StatusFunc, interval time.Duration) {
	events, cancel := h.Subscribe(batchID)
	defer cancel()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go readPump(conn, stop)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	var poll <-chan time.Time
	if interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		poll = t.C
	}

	write := func(mt int, data []byte) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(mt, data) == nil
	}
	push := func() bool {
		state, err := status(ctx)
		if err != nil {
			h.log.Warn().Err(err).Str("batch_id", batchID).Msg("status refresh failed")
			return true
		}
		data, err := Encode(state)
		if err != nil {
			return false
		}
		return write(websocket.TextMessage, data)
	}

	defer conn.Close()
	if !push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case data, ok := <-events:
			if !ok || !write(websocket.TextMessage, data) {
				return
			}
		case <-poll:
			if !push() {
				return
			}
		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done func()) {
	defer done()
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
