package relay

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the active relay sessions. A user reconnecting displaces their
// previous session.
type Hub struct {
	sessions map[string]*Session

	register   chan *Session
	unregister chan *Session

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a session hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			if previous, ok := h.sessions[session.user.ID]; ok && previous != session {
				go previous.Close()
			}
			h.sessions[session.user.ID] = session
			h.mu.Unlock()
			h.logger.Info("session registered", zap.String("userID", session.user.ID))

		case session := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.sessions[session.user.ID]; ok && current == session {
				delete(h.sessions, session.user.ID)
			}
			h.mu.Unlock()
			h.logger.Info("session unregistered", zap.String("userID", session.user.ID))
		}
	}
}

// Count returns the number of active sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every active session. Used on server shutdown.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	active := make([]*Session, 0, len(h.sessions))
	for _, session := range h.sessions {
		active = append(active, session)
	}
	h.mu.RUnlock()

	for _, session := range active {
		session.Close()
	}
}
