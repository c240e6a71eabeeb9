package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/ctxkey"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/backend"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/routing"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/session"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/pkg/jsonrpc"
)

// Pipeline orchestrates a single MCP request:
// decode -> session -> route -> acquire -> forward -> release -> reply.
// It is shared by the HTTP handler and the WebSocket frame loop.
type Pipeline struct {
	sessions  *session.Manager
	router    *routing.Router
	pool      *backend.Pool
	forwarder *Forwarder
	metrics   Recorder
	logger    *slog.Logger
}

// Recorder receives pipeline outcome counts. The Prometheus metrics in the
// HTTP adapter satisfy it; a no-op stands in when metrics are disabled.
type Recorder interface {
	RecordForward(backendID, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordForward(string, string) {}

// NewPipeline wires the pipeline. metrics may be nil.
func NewPipeline(sessions *session.Manager, router *routing.Router, pool *backend.Pool, forwarder *Forwarder, metrics Recorder, logger *slog.Logger) *Pipeline {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Pipeline{
		sessions:  sessions,
		router:    router,
		pool:      pool,
		forwarder: forwarder,
		metrics:   metrics,
		logger:    logger,
	}
}

// Handle processes one raw JSON-RPC request and returns the encoded reply
// bytes: the backend's response verbatim on success, a gateway error
// envelope otherwise. A nil return means no response is due (the request
// was a notification).
func (p *Pipeline) Handle(ctx context.Context, raw []byte, creds auth.Credentials) []byte {
	logger := p.contextLogger(ctx)

	req, errResp := jsonrpc.DecodeRequest(raw)
	if errResp != nil {
		logger.Warn("rejected malformed request", "code", errResp.Error.Code)
		return encode(errResp)
	}

	out, errResp := p.dispatch(ctx, logger, req, raw, creds)
	if req.IsNotification() {
		// Notifications are forwarded but never answered.
		return nil
	}
	if errResp != nil {
		return encode(errResp)
	}
	return out
}

// dispatch runs the post-decode steps and returns either the backend's
// verbatim response bytes or a gateway error response. The deferred recover
// converts panics inside the request task into -32603 and guarantees the
// backend release on every exit path.
func (p *Pipeline) dispatch(ctx context.Context, logger *slog.Logger, req *jsonrpc.Request, raw []byte, creds auth.Credentials) (out []byte, errResp *jsonrpc.Response) {
	var acquired *backend.Server
	defer func() {
		p.pool.Release(acquired)
		if r := recover(); r != nil {
			logger.Error("panic in request task", "panic", r, "method", req.Method)
			out, errResp = nil, jsonrpc.InternalError(req.ID, "internal error")
		}
	}()

	// Resolve or create the caller's session.
	sess, err := p.sessions.GetOrCreate(ctx, creds)
	if err != nil {
		if errors.Is(err, session.ErrMaxSessions) {
			logger.Warn("session budget exhausted")
			return nil, jsonrpc.InternalError(req.ID, "Maximum concurrent sessions reached")
		}
		logger.Warn("session resolution failed", "error", err)
		return nil, jsonrpc.InternalError(req.ID, err.Error())
	}
	logger = logger.With("session_id", sess.ID, "organization_id", sess.OrganizationID)

	// Route by tagged target.
	target, err := req.RouteTarget()
	if err != nil {
		logger.Warn("request missing routing parameter", "method", req.Method)
		return nil, jsonrpc.InvalidParams(req.ID, "missing routing target for "+req.Method)
	}
	backendID, ok := p.router.Resolve(target)
	if !ok {
		key := routing.Key(target)
		logger.Warn("no backend for capability", "capability", key)
		return nil, jsonrpc.MethodNotFound(req.ID, "No server found for capability: "+key)
	}

	// Acquire under the connection budget.
	acquired = p.pool.Acquire(backendID)
	if acquired == nil {
		logger.Warn("no healthy backend instance", "backend", backendID)
		p.metrics.RecordForward(backendID, "unavailable")
		return nil, jsonrpc.InternalError(req.ID, "No healthy server instances available for: "+backendID)
	}

	// Forward the body verbatim; release happens in the deferred cleanup.
	out, err = p.forwarder.Forward(ctx, acquired, req.Method, raw, sess)
	if err != nil {
		logger.Error("forward failed", "backend", backendID, "error", err)
		p.metrics.RecordForward(backendID, "error")
		return nil, jsonrpc.InternalError(req.ID, err.Error())
	}
	p.metrics.RecordForward(backendID, "ok")

	return out, nil
}

// contextLogger returns the request-scoped logger, creating a correlation id
// when the transport didn't provide one (WebSocket frames).
func (p *Pipeline) contextLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return p.logger.With("request_id", uuid.New().String())
}

// encode serializes a response; nil passes through.
func encode(resp *jsonrpc.Response) []byte {
	if resp == nil {
		return nil
	}
	data, err := jsonrpc.EncodeResponse(resp)
	if err != nil {
		// Responses are built from decoded JSON; marshalling cannot fail.
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return data
}
