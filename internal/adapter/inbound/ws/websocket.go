// Package ws provides the inbound WebSocket transport adapter: it upgrades
// GET /mcp/ws, binds the connection to a websocket-kind session, and runs
// each JSON-RPC frame through the request pipeline in its own goroutine.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	gwhttp "github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/inbound/http"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/session"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/service"
)

// Handler terminates WebSocket connections for the gateway.
type Handler struct {
	pipeline *service.Pipeline
	sessions *session.Manager
	logger   *slog.Logger
}

// NewHandler creates the WebSocket upgrade handler.
func NewHandler(pipeline *service.Pipeline, sessions *session.Manager, logger *slog.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		sessions: sessions,
		logger:   logger,
	}
}

// wsConn is the session-held handle on a live connection. It keeps only the
// session id, never the session, and serializes writes: per-frame goroutines
// finish in completion order and the client correlates replies by id.
type wsConn struct {
	sessionID string
	conn      *websocket.Conn
	writeMu   sync.Mutex
}

// SessionID returns the id of the session this connection is bound to.
func (c *wsConn) SessionID() string {
	return c.sessionID
}

// Close tears down the connection with a reason.
func (c *wsConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}

// write sends one frame, serialized across per-frame goroutines.
func (c *wsConn) write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP upgrades the connection, creates and binds a websocket session,
// and runs the frame loop until the client disconnects. Graceful close
// removes the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := gwhttp.LoggerFromContext(r.Context())

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin enforcement already happened in the admission chain.
		InsecureSkipVerify: true,
	})
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess, err := h.sessions.CreateWebSocketSession("")
	if err != nil {
		logger.Warn("websocket session creation failed", "error", err)
		_ = c.Close(websocket.StatusTryAgainLater, "maximum concurrent sessions reached")
		return
	}

	conn := &wsConn{sessionID: sess.ID, conn: c}
	if err := h.sessions.AttachWebSocket(sess.ID, conn); err != nil {
		logger.Error("failed to attach websocket", "session_id", sess.ID, "error", err)
		_ = c.Close(websocket.StatusInternalError, "session attach failed")
		return
	}

	// Frames authenticate as the websocket session itself: the session token
	// short-circuits resolution in the pipeline and refreshes activity.
	token, err := h.sessions.GenerateToken(sess.ID)
	if err != nil {
		logger.Error("failed to issue session token", "session_id", sess.ID, "error", err)
		h.sessions.Remove(sess.ID)
		return
	}
	creds := auth.Credentials{Bearer: token}

	logger = logger.With("session_id", sess.ID)
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	h.frameLoop(r.Context(), logger, conn, creds)

	// Closing the socket removes the session; Remove closes the handle,
	// which is a no-op on an already-dead connection.
	h.sessions.Remove(sess.ID)
	logger.Info("websocket disconnected")
}

// frameLoop reads frames until the connection dies. Each frame is handled
// in a dedicated goroutine; cancelling frameCtx on exit abandons every
// outstanding frame task bound to this connection.
func (h *Handler) frameLoop(ctx context.Context, logger *slog.Logger, conn *wsConn, creds auth.Credentials) {
	// On exit: cancel outstanding frame tasks first, then wait them out.
	var frames sync.WaitGroup
	defer frames.Wait()

	frameCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		_, data, err := conn.conn.Read(frameCtx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && frameCtx.Err() == nil {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		frames.Add(1)
		go func(frame []byte) {
			defer frames.Done()
			reply := h.pipeline.Handle(frameCtx, frame, creds)
			if reply == nil {
				return
			}
			if err := conn.write(frameCtx, reply); err != nil {
				logger.Debug("websocket write failed", "error", err)
			}
		}(data)
	}
}
