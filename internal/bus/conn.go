package bus

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	idleTimeout  = 30 * time.Minute
	writeTimeout = 10 * time.Second
	readLimit    = 4096
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns an http.HandlerFunc that upgrades GET /ws (or
// wherever it is mounted) into a Bus client connection, running its
// read/write pumps until the connection closes.
func Handler(b *Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("bus.conn.upgrade_failed", "component", "bus", "event", "conn.upgrade_error", "error", err)
			return
		}

		c := b.NewClientFor(r.RemoteAddr)
		b.Register(c)

		slog.Info("bus.conn.connected", "component", "bus", "event", "conn.connected", "client", c.ID())

		go writePump(conn, c)
		readPump(r.Context(), conn, b, c)
	}
}

// writePump drains the client's send queue to the socket, interleaving
// periodic pings and closing the connection after idleTimeout with no
// outbound traffic. Mirrors the teacher's deviceConn.writePump.
func writePump(conn *ws.Conn, c *Client) {
	pingTicker := time.NewTicker(pingInterval)
	idleTimer := time.NewTimer(idleTimeout)
	defer func() {
		pingTicker.Stop()
		idleTimer.Stop()
		conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")) //nolint:errcheck
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				return
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idleTimeout)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}

		case <-idleTimer.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.ClosePolicyViolation, "idle timeout")) //nolint:errcheck
			return

		case <-c.Closed():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.ClosePolicyViolation, "slow consumer")) //nolint:errcheck
			return
		}
	}
}

// readPump reads command frames until the connection closes, dispatching
// each to the Bus. Unregisters the client on return.
func readPump(ctx context.Context, conn *ws.Conn, b *Bus, c *Client) {
	defer func() {
		b.Unregister(c)
		conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseGoingAway, ws.CloseAbnormalClosure, ws.CloseNormalClosure) {
				slog.Warn("bus.conn.unexpected_close",
					"component", "bus", "event", "conn.read_error", "client", c.ID(), "error", err)
			}
			return
		}
		b.HandleCommand(ctx, c, cmd)
	}
}
