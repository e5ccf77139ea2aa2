// Package aisession implements the AI Session Manager (C5): one
// single-flight turn state machine per user_id, streaming incremental
// assistant replies while honoring a cancel-on-new-message policy, tool
// dispatch with a per-tool timeout, and escalation-intent classification.
//
// Grounded on the teacher's agent/loop.go iteration loop (call provider,
// inspect HasToolCalls, execute tools, append tool-role messages, loop
// again), generalized from one shared hub-draining loop into one
// independent turn state machine per session, each guarded by its own
// mutex (spec §5 lock order: turnMu before any sheets write lock, never the
// reverse — aisession never imports sheets directly at all, only through
// narrow capability interfaces passed into the tool registry).
package aisession

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/supportbot/internal/vendorllm"
)

// Session is the per-user_id conversation state (spec §3: "Conversation
// session"). There is no disk persistence of the message history itself
// (lifetime = process), only of the optional append-only chat-history
// JSONL trace written by Manager after each completed turn.
type Session struct {
	userID string

	turnMu sync.Mutex // held for the entire duration of one turn

	cancelMu sync.Mutex
	cancel   context.CancelFunc // non-nil while a turn is in flight

	history []vendorllm.Message

	lastActivity atomic.Int64 // unix nanos
}

func (s *Session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// Manager owns every session for the process lifetime: created lazily on
// first turn, never evicted (spec §4.5: "bounded by unique-user count for
// the process lifetime").
type Manager struct {
	vendor vendorllm.Vendor
	model  string
	tools  *ToolRegistry
	logger zerolog.Logger

	history *historyWriter

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager. historyPath == "" disables chat-history
// persistence (spec §6 lists it as optional).
func NewManager(vendor vendorllm.Vendor, model string, tools *ToolRegistry, logger zerolog.Logger, historyPath string) *Manager {
	return &Manager{
		vendor:   vendor,
		model:    model,
		tools:    tools,
		logger:   logger.With().Str("component", "c5.aisession").Logger(),
		history:  newHistoryWriter(historyPath),
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) sessionFor(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{userID: userID}
		m.sessions[userID] = s
	}
	return s
}
