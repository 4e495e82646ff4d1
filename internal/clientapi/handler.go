package clientapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"medea/internal/api"
	"medea/internal/controlapi"
	"medea/internal/id"
)

// Handler upgrades /ws/{roomId}/{memberId} to a WebSocket connection,
// waits for the IDENTIFY handshake, authorizes the member against the
// named Room, and hands the socket off to a Connection's read/write
// pumps. Grounded on the teacher's WebSocketHandler.ServeWS, generalized
// from one global Hub to per-Room dispatch through a RoomRepository.
type Handler struct {
	rooms            *controlapi.RoomRepository
	upgrader         websocket.Upgrader
	idleTimeout      time.Duration
	pingInterval     time.Duration
	identifyTimeout  time.Duration
	router           *chi.Mux
}

func NewHandler(
	rooms *controlapi.RoomRepository,
	allowedOrigins []string,
	idleTimeout, pingInterval, identifyTimeout time.Duration,
	ipResolver *api.ClientIPResolver,
	upgradeRateLimit int,
	upgradeRateWindow time.Duration,
) *Handler {
	wildcard := slices.Contains(allowedOrigins, "*")
	h := &Handler{
		rooms:           rooms,
		idleTimeout:     idleTimeout,
		pingInterval:    pingInterval,
		identifyTimeout: identifyTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if wildcard {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
	}

	r := chi.NewRouter()
	r.Use(api.SlogRequestLogger)
	r.Use(middleware.Recoverer)
	r.With(api.RateLimitMiddleware(api.NewRateLimiter(upgradeRateLimit, upgradeRateWindow), ipResolver)).
		Get("/ws/{roomId}/{memberId}", h.serveWS)
	h.router = r

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	roomID := id.RoomID(chi.URLParam(r, "roomId"))
	memberID := id.MemberID(chi.URLParam(r, "memberId"))

	rm, ok := h.rooms.Get(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(h.identifyTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		slog.Warn("identify read failed", "error", err)
		conn.Close()
		return
	}

	var identify identifyMessage
	if err := json.Unmarshal(raw, &identify); err != nil || identify.MemberID != memberID {
		slog.Warn("malformed identify message", "error", err)
		conn.Close()
		return
	}

	if _, err := rm.Authorize(memberID, identify.Credentials); err != nil {
		slog.Warn("authorize failed", "member_id", memberID, "error", err)
		conn.Close()
		return
	}

	rpcConn := newConnection(conn, rm, memberID, h.pingInterval)
	if err := rm.ConnectionEstablished(context.Background(), memberID, rpcConn); err != nil {
		slog.Error("connection established failed", "member_id", memberID, "error", err)
		conn.Close()
		return
	}

	go rpcConn.writePump()
	rpcConn.readPump(h.idleTimeout)
}
