package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/org"
)

// DefaultTimeout is the default idle session expiry.
const DefaultTimeout = 30 * time.Minute

// DefaultSweepInterval is how often the sweeper scans for expired sessions.
const DefaultSweepInterval = 1 * time.Minute

// ErrMaxSessions is returned when the global session budget is exhausted.
var ErrMaxSessions = errors.New("maximum concurrent sessions reached")

// ErrSessionNotFound is returned when a session doesn't exist or has expired.
var ErrSessionNotFound = errors.New("session not found")

// Config holds session manager configuration.
type Config struct {
	// Timeout is the idle expiry. Default: 30 minutes.
	Timeout time.Duration
	// MaxSessions is the global session budget. Default: 100.
	MaxSessions int
	// SweepInterval is the expiry scan period. Default: 1 minute.
	SweepInterval time.Duration
}

// Manager owns the session table. The table is guarded by a single RWMutex;
// reads dominate, and the quota check is atomic with creation.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	resolver *auth.Resolver
	signer   *TokenSigner
	timeout  time.Duration
	max      int
	sweep    time.Duration
	logger   *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewManager creates a session manager. The resolver supplies organization
// context for new sessions; the signer issues opaque session tokens.
func NewManager(resolver *auth.Resolver, signer *TokenSigner, cfg Config, logger *slog.Logger) *Manager {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	max := cfg.MaxSessions
	if max == 0 {
		max = 100
	}
	sweep := cfg.SweepInterval
	if sweep == 0 {
		sweep = DefaultSweepInterval
	}
	return &Manager{
		sessions: make(map[string]*Session),
		resolver: resolver,
		signer:   signer,
		timeout:  timeout,
		max:      max,
		sweep:    sweep,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// GetOrCreate returns the session identified by a session-token bearer, or
// creates a new one from the resolved organization context.
// Returns ErrMaxSessions when the budget is exhausted; the failed attempt has
// no side effects.
func (m *Manager) GetOrCreate(ctx context.Context, creds auth.Credentials) (*Session, error) {
	// A bearer that validates as a gateway session token short-circuits
	// resolution entirely.
	if creds.Bearer != "" {
		if id, ok := m.signer.Validate(creds.Bearer); ok {
			sess, err := m.Get(id)
			if err != nil {
				// Token replay after removal, or expiry.
				return nil, err
			}
			return sess, nil
		}
	}

	octx := m.resolver.Resolve(ctx, creds)
	return m.create(octx, "", TransportHTTP)
}

// CreateWebSocketSession creates a session bound to a WebSocket transport.
// The caller attaches the live connection afterwards via AttachWebSocket.
func (m *Manager) CreateWebSocketSession(userID string) (*Session, error) {
	return m.create(nil, userID, TransportWebSocket)
}

// create builds and registers a new session under the global budget.
func (m *Manager) create(octx *org.Context, userID string, transport Transport) (*Session, error) {
	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:             id,
		UserID:         userID,
		Transport:      transport,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	// Organization context is captured at creation and never mutates.
	if octx != nil {
		sess.UserID = octx.UserID
		sess.OrganizationID = octx.OrganizationID
		sess.OrganizationExternalID = octx.OrganizationExternalID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.max {
		return nil, ErrMaxSessions
	}
	m.sessions[id] = sess

	return copySession(sess), nil
}

// Get retrieves a session by id and refreshes its activity timestamp.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.IdleSince(time.Now().UTC()) > m.timeout {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	sess.Touch()
	return copySession(sess), nil
}

// AttachWebSocket binds a live WebSocket handle to a session. Subsequent
// server-to-client messages go through it, and Remove closes it.
func (m *Manager) AttachWebSocket(sessionID string, conn WebSocketConn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.ws = conn
	sess.Transport = TransportWebSocket
	return nil
}

// GenerateToken returns an opaque token for an existing session.
func (m *Manager) GenerateToken(sessionID string) (string, error) {
	m.mu.RLock()
	_, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return "", ErrSessionNotFound
	}
	return m.signer.Generate(sessionID), nil
}

// Remove deletes a session and closes any bound transport.
// Removing an unknown id is a no-op.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if ok && sess.ws != nil {
		if err := sess.ws.Close("session removed"); err != nil {
			m.logger.Debug("failed to close websocket on remove", "session_id", sessionID, "error", err)
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LiveIDs returns the ids of all live sessions.
func (m *Manager) LiveIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StartSweeper starts the background goroutine that removes sessions idle
// beyond the timeout. Call Stop to halt it.
func (m *Manager) StartSweeper(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.sweepExpired()
			}
		}
	}()
}

// sweepExpired removes all sessions past the idle timeout.
func (m *Manager) sweepExpired() {
	now := time.Now().UTC()

	m.mu.Lock()
	var closed []WebSocketConn
	swept := 0
	for id, sess := range m.sessions {
		if sess.IdleSince(now) > m.timeout {
			delete(m.sessions, id)
			if sess.ws != nil {
				closed = append(closed, sess.ws)
			}
			swept++
		}
	}
	m.mu.Unlock()

	// Close transports outside the lock.
	for _, ws := range closed {
		_ = ws.Close("session expired")
	}

	if swept > 0 {
		m.logger.Debug("swept expired sessions", "count", swept)
	}
}

// Stop halts the sweeper and waits for it to exit. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.stopChan)
	})
	m.wg.Wait()
}

// copySession returns a copy so callers can't mutate table state.
// The ws handle is shared deliberately: it is the live connection.
func copySession(sess *Session) *Session {
	c := *sess
	return &c
}
