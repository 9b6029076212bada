package db

import (
	"fmt"
	"sync"

	"github.com/dipolehq/dipole/internal/models"
)

// MemoryStore keeps all data in process memory. It backs tests and one-shot
// runs that do not need a database file. Values are cloned on the way in and
// out so callers can never alias internal state.
type MemoryStore struct {
	mu                sync.RWMutex
	projects          map[string]*models.Project
	projectOrder      []string
	sessions          map[string]map[string]*models.Session // projectID -> sessionID
	sessionsByProject map[string][]*models.Session          // insertion order
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:          make(map[string]*models.Project),
		sessions:          make(map[string]map[string]*models.Session),
		sessionsByProject: make(map[string][]*models.Session),
	}
}

func (m *MemoryStore) UpsertProject(project *models.Project) error {
	if project == nil || project.ID == "" {
		return fmt.Errorf("project id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		m.projectOrder = append(m.projectOrder, project.ID)
	}
	m.projects[project.ID] = cloneProject(project)
	return nil
}

func (m *MemoryStore) GetProject(id string) (*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneProject(m.projects[id]), nil
}

func (m *MemoryStore) ListProjects() ([]*models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Project, 0, len(m.projectOrder))
	for _, id := range m.projectOrder {
		out = append(out, cloneProject(m.projects[id]))
	}
	return out, nil
}

func (m *MemoryStore) AddSession(s *models.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.sessions[s.ProjectID]
	if byID == nil {
		byID = make(map[string]*models.Session)
		m.sessions[s.ProjectID] = byID
	}
	if _, ok := byID[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	clone := cloneSession(s)
	byID[s.ID] = clone
	m.sessionsByProject[s.ProjectID] = append(m.sessionsByProject[s.ProjectID], clone)
	return nil
}

func (m *MemoryStore) GetSession(projectID, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneSession(m.sessions[projectID][sessionID]), nil
}

// UpdateSession replaces the stored session in place. The ordered slice holds
// the same pointer, so list results pick up the new state without reindexing.
func (m *MemoryStore) UpdateSession(s *models.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ProjectID][s.ID]
	if !ok {
		return fmt.Errorf("session %s not found", s.ID)
	}
	*existing = *cloneSession(s)
	return nil
}

func (m *MemoryStore) ListSessions(projectID string) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.sessionsByProject[projectID]
	out := make([]*models.Session, 0, len(stored))
	for _, s := range stored {
		out = append(out, cloneSession(s))
	}
	return out, nil
}

func (m *MemoryStore) DeleteSessionsByProject(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, projectID)
	delete(m.sessionsByProject, projectID)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func cloneProject(p *models.Project) *models.Project {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Items = append([]models.ScaleItem(nil), p.Items...)
	return &clone
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Responses = append([]models.ResponseRecord(nil), s.Responses...)
	return &clone
}
