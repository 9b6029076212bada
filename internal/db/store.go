package db

import "github.com/dipolehq/dipole/internal/models"

// Store is the persistence boundary shared by the in-memory and SQLite
// backends. Lookups return (nil, nil) when the record does not exist;
// errors are reserved for storage failures.
type Store interface {
	UpsertProject(project *models.Project) error
	GetProject(id string) (*models.Project, error)
	ListProjects() ([]*models.Project, error)

	AddSession(s *models.Session) error
	GetSession(projectID, sessionID string) (*models.Session, error)
	UpdateSession(s *models.Session) error
	ListSessions(projectID string) ([]*models.Session, error)
	DeleteSessionsByProject(projectID string) error

	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
