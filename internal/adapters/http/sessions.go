package httpadapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
)

// RunnerFactory builds one turn runner per session.
type RunnerFactory func(cfg domain.SessionConfig) (ports.TurnRunner, error)

// session pairs a turn runner with its retriever handle. The mutex serializes
// turns: runners are single-conversation state machines.
type session struct {
	id     string
	userID string
	handle *domain.RetrieverHandle
	runner ports.TurnRunner
	cfg    domain.SessionConfig

	mu sync.Mutex
}

// SessionManager owns the live conversation sessions of the server.
type SessionManager struct {
	factory RunnerFactory

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewSessionManager(factory RunnerFactory) *SessionManager {
	return &SessionManager{
		factory:  factory,
		sessions: make(map[string]*session),
	}
}

func (m *SessionManager) Create(userID string, handle *domain.RetrieverHandle, cfg domain.SessionConfig) (string, error) {
	runner, err := m.factory(cfg)
	if err != nil {
		return "", err
	}

	s := &session{
		id:     uuid.NewString(),
		userID: userID,
		handle: handle,
		runner: runner,
		cfg:    cfg,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s.id, nil
}

func (m *SessionManager) get(userID, sessionID string) (*session, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok || s.userID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "lookup session",
			fmt.Errorf("session %q does not exist for this user", sessionID))
	}
	return s, nil
}

// Configure replaces the session configuration; the runner clears its history
// when anything changed.
func (m *SessionManager) Configure(userID, sessionID string, cfg domain.SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := m.get(userID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner.Configure(cfg)
	s.cfg = cfg
	return nil
}

// SelectDocuments swaps the retriever handle for subsequent turns. A changed
// selection clears the runner's history: prior turns were answered against a
// different corpus.
func (m *SessionManager) SelectDocuments(userID, sessionID string, handle *domain.RetrieverHandle) error {
	s, err := m.get(userID, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !sameSelection(s.handle, handle) {
		s.runner.Reset()
	}
	s.handle = handle
	return nil
}

func sameSelection(a, b *domain.RetrieverHandle) bool {
	if a == nil || b == nil {
		return a == b
	}
	if len(a.FileNames) != len(b.FileNames) {
		return false
	}
	as := append([]string(nil), a.FileNames...)
	bs := append([]string(nil), b.FileNames...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func (m *SessionManager) RunTurn(ctx context.Context, userID, sessionID, userText string, sink ports.TokenSink) (*domain.Answer, domain.SessionConfig, error) {
	s, err := m.get(userID, sessionID)
	if err != nil {
		return nil, domain.SessionConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	answer, err := s.runner.RunTurn(ctx, s.handle, userText, sink)
	return answer, s.cfg, err
}

func (m *SessionManager) History(userID, sessionID string) ([]domain.Turn, error) {
	s, err := m.get(userID, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.History(), nil
}

func (m *SessionManager) Config(userID, sessionID string) (domain.SessionConfig, error) {
	s, err := m.get(userID, sessionID)
	if err != nil {
		return domain.SessionConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

func (m *SessionManager) Destroy(userID, sessionID string) error {
	if _, err := m.get(userID, sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	return nil
}
