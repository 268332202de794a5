package pipeline

import (
	"database/sql"
	"sync"
	"time"

	"launchpath/internal/config"
	"launchpath/internal/spotlight"
)

// Manager hands out one Orchestrator per owner, created lazily. Concurrent
// requests for the same owner share an instance, so its mutex serializes
// their pipeline runs; different owners proceed independently.
type Manager struct {
	DB        *sql.DB
	Config    *config.Config
	Presenter spotlight.Presenter
	Observers Observers
	Now       func() time.Time

	mu     sync.Mutex
	owners map[string]*Orchestrator
}

func NewManager(db *sql.DB, cfg *config.Config) *Manager {
	return &Manager{DB: db, Config: cfg}
}

func (m *Manager) ForOwner(ownerID string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners == nil {
		m.owners = make(map[string]*Orchestrator)
	}
	if o, ok := m.owners[ownerID]; ok {
		return o
	}
	o := New(Options{
		OwnerID:   ownerID,
		DB:        m.DB,
		Config:    m.Config,
		Presenter: m.Presenter,
		Observers: m.Observers,
		Now:       m.Now,
	})
	m.owners[ownerID] = o
	return o
}
