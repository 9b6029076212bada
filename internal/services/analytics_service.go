package services

import (
	"go.uber.org/zap"

	"github.com/dipolehq/dipole/internal/models"
)

// AnalyticsStore abstracts the reads the analytics pipeline needs.
type AnalyticsStore interface {
	GetProject(id string) (*models.Project, error)
	ListSessions(projectID string) ([]*models.Session, error)
}

// ProjectSummary is the per-item statistical overview of one project.
type ProjectSummary struct {
	ProjectID         string            `json:"project_id"`
	Mode              models.ScaleMode  `json:"mode"`
	ScalePoints       int               `json:"scale_points"`
	TotalSessions     int               `json:"total_sessions"`
	CompletedSessions int               `json:"completed_sessions"`
	Items             []*ItemStatistics `json:"items"`
}

// AnalyticsService computes aggregate views over a project's completed
// sessions. Every call reads the store and computes fresh; nothing is
// cached between invocations.
type AnalyticsService struct {
	store     AnalyticsStore
	clusterer *Clusterer
	logger    *zap.Logger
}

// NewAnalyticsService wires the store with an optional clusterer and
// logger. A nil clusterer falls back to an ambient-seeded one; callers
// needing reproducible clustering pass NewSeededClusterer.
func NewAnalyticsService(store AnalyticsStore, clusterer *Clusterer, logger *zap.Logger) *AnalyticsService {
	if clusterer == nil {
		clusterer = NewClusterer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{store: store, clusterer: clusterer, logger: logger}
}

// Summary computes per-item statistics over completed sessions, items in
// configuration order.
func (s *AnalyticsService) Summary(projectID string) (*ProjectSummary, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	completed := completedOnly(sessions)
	summary := &ProjectSummary{
		ProjectID:         project.ID,
		Mode:              project.Mode,
		ScalePoints:       project.ScalePoints,
		TotalSessions:     len(sessions),
		CompletedSessions: len(completed),
		Items:             make([]*ItemStatistics, 0, len(project.Items)),
	}
	for _, it := range project.Items {
		st, err := ItemStats(it.ID, itemValues(completed, it.ID), project.Mode, project.ScalePoints)
		if err != nil {
			return nil, err
		}
		summary.Items = append(summary.Items, st)
	}
	return summary, nil
}

// CompareGroups partitions completed sessions by group key and returns one
// profile per group in discovery order.
func (s *AnalyticsService) CompareGroups(projectID string) ([]*GroupProfile, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	return CompareGroups(completedOnly(sessions), project.Items, project.Mode, project.ScalePoints)
}

// Reliability computes Cronbach's alpha over completed sessions that
// answered every item.
func (s *AnalyticsService) Reliability(projectID string) (*ReliabilityReport, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	matrix := reliabilityMatrix(completedOnly(sessions), project.Items)
	return &ReliabilityReport{
		Alpha:        CronbachAlpha(matrix),
		ItemCount:    len(project.Items),
		SessionCount: len(matrix),
	}, nil
}

// Clusters runs k-means over the project's completed sessions.
func (s *AnalyticsService) Clusters(projectID string, k, maxIterations int) ([]*ClusterAssignment, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	out, err := s.clusterer.Cluster(completedOnly(sessions), project.Items, k, maxIterations)
	if err != nil {
		return nil, err
	}
	s.logger.Info("clusters computed",
		zap.String("project_id", projectID),
		zap.Int("k", k),
		zap.Int("clusters", len(out)))
	return out, nil
}

func (s *AnalyticsService) load(projectID string) (*models.Project, []*models.Session, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, NewNotFoundError("project not found")
	}
	sessions, err := s.store.ListSessions(projectID)
	if err != nil {
		return nil, nil, err
	}
	return project, sessions, nil
}

// completedOnly filters to frozen sessions, preserving input order.
func completedOnly(sessions []*models.Session) []*models.Session {
	out := make([]*models.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Completed() {
			out = append(out, s)
		}
	}
	return out
}
