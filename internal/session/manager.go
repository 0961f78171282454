package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"scramble/internal/board"
	"scramble/internal/storage"
)

// Manager manages all active sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    *storage.Store
	log      *zap.Logger
}

// NewManager creates a session manager.
func NewManager(store *storage.Store, log *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		log:      log,
	}
}

// CreateFromText parses board-file text and hosts the resulting board.
func (m *Manager) CreateFromText(text string) (*Session, error) {
	b, err := board.Parse(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	return m.Host(b)
}

// CreateGenerated hosts a randomly generated board dealt from a value pool.
func (m *Manager) CreateGenerated(rows, cols int, values []string) (*Session, error) {
	b, err := board.Generate(rows, cols, values)
	if err != nil {
		return nil, err
	}
	return m.Host(b)
}

// Host registers an already-built board as a new session and persists it.
func (m *Manager) Host(b *board.Board) (*Session, error) {
	code := generateCode()
	rows, cols := b.Size()
	if err := m.store.CreateGame(code, rows, cols); err != nil {
		return nil, fmt.Errorf("persist game: %w", err)
	}
	s := &Session{Code: code, Board: b, CreatedAt: time.Now()}
	m.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a session by code.
func (m *Manager) Get(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[code]
	return s, ok
}

// List returns info for all active sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// RecordScores persists the session's current matched-pair counts.
func (m *Manager) RecordScores(s *Session) error {
	for player, pairs := range s.Board.Scores() {
		if err := m.store.UpsertScore(s.Code, player, pairs); err != nil {
			return fmt.Errorf("persist score for %s: %w", player, err)
		}
	}
	return nil
}

// Remove deletes a session from memory and storage.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	delete(m.sessions, code)
	m.mu.Unlock()
	if err := m.store.DeleteGame(code); err != nil {
		m.log.Warn("delete game", zap.String("code", code), zap.Error(err))
	}
}

// CleanupLoop removes stale sessions periodically.
func (m *Manager) CleanupLoop(interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.cleanup(maxAge)
	}
}

// cleanup drops cleared boards, keeping their game and score rows as
// history, and fully deletes sessions older than maxAge.
func (m *Manager) cleanup(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for code, s := range m.sessions {
		switch {
		case s.Done():
			m.log.Info("game cleared", zap.String("code", code))
			delete(m.sessions, code)
		case now.Sub(s.CreatedAt) > maxAge:
			m.log.Info("expiring session", zap.String("code", code))
			if err := m.store.DeleteGame(code); err != nil {
				m.log.Warn("delete game", zap.String("code", code), zap.Error(err))
			}
			delete(m.sessions, code)
		}
	}
}

func generateCode() string {
	b := make([]byte, 3) // 6 hex chars
	rand.Read(b)
	return hex.EncodeToString(b)
}
