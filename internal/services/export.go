package services

import (
	"time"

	"github.com/dipolehq/dipole/internal/models"
)

// LongRow is one completed response in long format: one row per
// session-item pair. GroupKey carries the same "ungrouped" fallback the
// aggregator uses so downstream tables join cleanly against GroupProfile
// keys.
type LongRow struct {
	SessionID   string    `json:"session_id"`
	GroupKey    string    `json:"group_key"`
	ItemID      string    `json:"item_id"`
	RawValue    float64   `json:"raw_value"`
	Flipped     bool      `json:"flipped"`
	Normalized  float64   `json:"normalized"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GroupSummaryRow flattens one item of one group profile for tabular
// consumers.
type GroupSummaryRow struct {
	GroupKey   string  `json:"group_key"`
	GroupLabel string  `json:"group_label"`
	ItemID     string  `json:"item_id"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Median     float64 `json:"median"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Count      int     `json:"count"`
}

// BuildLongRows shapes completed responses into long format, sessions in
// input order and items in configuration order. Unanswered items produce
// no row. How rows are serialized (CSV, JSON, charts) is the consumer's
// business.
func BuildLongRows(sessions []*models.Session, items []models.ScaleItem) []LongRow {
	var rows []LongRow
	for _, s := range sessions {
		if !s.Completed() {
			continue
		}
		key := s.GroupKey
		if key == "" {
			key = UngroupedKey
		}
		for _, it := range items {
			r := s.Response(it.ID)
			if r == nil {
				continue
			}
			rows = append(rows, LongRow{
				SessionID:   s.ID,
				GroupKey:    key,
				ItemID:      it.ID,
				RawValue:    r.RawValue,
				Flipped:     r.Flipped,
				Normalized:  r.Normalized,
				SubmittedAt: r.SubmittedAt,
			})
		}
	}
	return rows
}

// BuildWideMatrix shapes completed responses into sessionID -> itemID ->
// normalized value. Unanswered items are absent rather than zero-filled;
// only the clustering matrix treats missing answers as neutral.
func BuildWideMatrix(sessions []*models.Session, items []models.ScaleItem) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, s := range sessions {
		if !s.Completed() {
			continue
		}
		row := make(map[string]float64, len(items))
		for _, it := range items {
			if r := s.Response(it.ID); r != nil {
				row[it.ID] = r.Normalized
			}
		}
		out[s.ID] = row
	}
	return out
}

// BuildGroupSummaryRows flattens group profiles into per-group per-item
// rows, preserving group and item order.
func BuildGroupSummaryRows(profiles []*GroupProfile) []GroupSummaryRow {
	var rows []GroupSummaryRow
	for _, p := range profiles {
		for _, st := range p.Items {
			rows = append(rows, GroupSummaryRow{
				GroupKey:   p.Key,
				GroupLabel: p.Label,
				ItemID:     st.ItemID,
				Mean:       st.Mean,
				StdDev:     st.StdDev,
				Median:     st.Median,
				Min:        st.Min,
				Max:        st.Max,
				Count:      st.Count,
			})
		}
	}
	return rows
}

// ExportStore abstracts the reads the export shaper needs.
type ExportStore interface {
	GetProject(id string) (*models.Project, error)
	ListSessions(projectID string) ([]*models.Session, error)
}

// ExportService assembles export-ready data for one project.
type ExportService struct {
	store ExportStore
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store}
}

// LongRows returns the project's completed responses in long format.
func (s *ExportService) LongRows(projectID string) ([]LongRow, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	return BuildLongRows(sessions, project.Items), nil
}

// WideMatrix returns the project's completed responses keyed by session
// and item.
func (s *ExportService) WideMatrix(projectID string) (map[string]map[string]float64, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	return BuildWideMatrix(sessions, project.Items), nil
}

// GroupSummaryRows returns per-group per-item statistic rows.
func (s *ExportService) GroupSummaryRows(projectID string) ([]GroupSummaryRow, error) {
	project, sessions, err := s.load(projectID)
	if err != nil {
		return nil, err
	}
	profiles, err := CompareGroups(completedOnly(sessions), project.Items, project.Mode, project.ScalePoints)
	if err != nil {
		return nil, err
	}
	return BuildGroupSummaryRows(profiles), nil
}

func (s *ExportService) load(projectID string) (*models.Project, []*models.Session, error) {
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
