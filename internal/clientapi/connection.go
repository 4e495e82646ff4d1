package clientapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"medea/internal/id"
	"medea/internal/member"
	"medea/internal/room"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// Connection is the WebSocket-backed member.RpcConnection: one per
// established Client API session. Grounded on the teacher's Client
// ReadPump/WritePump split — a dedicated writer goroutine owns the
// socket's write side so concurrent SendEvent calls from the Room actor
// never race a ping.
type Connection struct {
	conn *websocket.Conn
	room *room.Room

	memberID id.MemberID
	pingPeriod time.Duration

	send      chan eventEnvelope
	closeOnce sync.Once
	closed    chan struct{}

	log *slog.Logger
}

func newConnection(conn *websocket.Conn, rm *room.Room, memberID id.MemberID, pingPeriod time.Duration) *Connection {
	return &Connection{
		conn:       conn,
		room:       rm,
		memberID:   memberID,
		pingPeriod: pingPeriod,
		send:       make(chan eventEnvelope, sendBuffer),
		closed:     make(chan struct{}),
		log:        slog.With("member_id", memberID),
	}
}

// SendEvent implements member.RpcConnection. It never blocks on a slow
// reader: when the send buffer is full the event is dropped and an error
// returned, rather than let one member back-pressure the whole Room actor.
// The connection itself stays open.
func (c *Connection) SendEvent(ctx context.Context, event any) error {
	select {
	case <-c.closed:
		return errors.New("clientapi: connection closed")
	default:
	}

	select {
	case c.send <- eventEnvelope{Event: eventName(event), Data: event}:
		return nil
	default:
		c.log.Warn("dropping event, send buffer full")
		return errors.New("clientapi: send buffer full")
	}
}

func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}

// readPump blocks until the socket closes, decoding and dispatching every
// inbound Client API command. idleTimeout bounds how long the connection
// may go without a pong before it's considered dead.
func (c *Connection) readPump(idleTimeout time.Duration) {
	defer func() {
		_ = c.room.ConnectionClosed(c.memberID, member.ClosedReasonClosed)
		c.Close(context.Background())
	}()

	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read error", "error", err)
			}
			return
		}

		cmd, err := decodeCommand(raw)
		if err != nil {
			c.log.Warn("decoding command", "error", err)
			continue
		}
		if err := dispatch(c.room, cmd); err != nil {
			c.log.Warn("dispatching command", "error", err)
		}
	}
}

// writePump owns the only goroutine that ever calls WriteMessage, relaying
// queued events and periodic pings until the connection is closed.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close(context.Background())
	}()

	for {
		select {
		case <-c.closed:
			return
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Error("writing event", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
