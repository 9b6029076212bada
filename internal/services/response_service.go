package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dipolehq/dipole/internal/models"
)

// SessionStore abstracts the persistence operations ResponseService needs.
type SessionStore interface {
	GetProject(id string) (*models.Project, error)
	AddSession(s *models.Session) error
	GetSession(projectID, sessionID string) (*models.Session, error)
	UpdateSession(s *models.Session) error
	ListSessions(projectID string) ([]*models.Session, error)
}

// Answer is one inbound item response.
type Answer struct {
	ItemID string
	Raw    float64
}

// SubmitSessionRequest carries a one-shot submission: start a session,
// record every answer, freeze it.
type SubmitSessionRequest struct {
	ProjectID  string
	SessionID  string // optional; generated when empty
	GroupKey   string
	GroupLabel string
	Answers    []Answer
}

// SubmitSessionResult reports what a one-shot submission stored.
type SubmitSessionResult struct {
	SessionID      string
	ResponsesCount int
}

// PresentedItem is one item the way a renderer must show it: pole labels
// already swapped when the session's pattern flips the item.
type PresentedItem struct {
	ItemID    string `json:"item_id"`
	LeftPole  string `json:"left_pole"`
	RightPole string `json:"right_pole"`
	Flipped   bool   `json:"flipped"`
}

// SessionPresentation is the render-time contract for one session.
type SessionPresentation struct {
	SessionID   string           `json:"session_id"`
	Mode        models.ScaleMode `json:"mode"`
	ScalePoints int              `json:"scale_points"`
	Items       []PresentedItem  `json:"items"`
}

var (
	// ErrProjectNotFound is returned when a request references a missing project.
	ErrProjectNotFound = errors.New("project not found")
	// ErrSessionNotFound is returned when a request references a missing session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists flags an attempt to start a session under a taken ID.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionCompleted flags writes against a frozen session.
	ErrSessionCompleted = errors.New("session already completed")
)

// ResponseService hosts the session lifecycle: start, present, record,
// complete. Flip patterns are always re-derived from the session ID, never
// accepted from the caller, so render and intake cannot disagree.
type ResponseService struct {
	store       SessionStore
	logger      *zap.Logger
	now         func() time.Time
	idGenerator func() string
}

// NewResponseService constructs a service bound to the provided store.
// A nil logger disables logging.
func NewResponseService(store SessionStore, logger *zap.Logger) *ResponseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseService{
		store:       store,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: defaultSessionID,
	}
}

func defaultSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// StartSession creates a session in the created state. An empty sessionID
// gets a generated one; a taken ID is a conflict.
func (s *ResponseService) StartSession(projectID, sessionID, groupKey, groupLabel string) (*models.Session, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}
	if sessionID == "" {
		sessionID = s.idGenerator()
	}
	existing, err := s.store.GetSession(projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrSessionExists
	}
	session := &models.Session{
		ID:         sessionID,
		ProjectID:  projectID,
		GroupKey:   groupKey,
		GroupLabel: groupLabel,
		Status:     models.SessionCreated,
		CreatedAt:  s.now(),
	}
	if err := s.store.AddSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Presentation returns the items in configuration order with pole labels
// swapped wherever the session's flip pattern says so. Derived on demand;
// nothing about the pattern is persisted.
func (s *ResponseService) Presentation(projectID, sessionID string) (*SessionPresentation, error) {
	project, session, err := s.lookup(projectID, sessionID)
	if err != nil {
		return nil, err
	}
	flips := FlipPattern(session.ID, project.ItemIDs(), project.Counterbalance)
	items := make([]PresentedItem, 0, len(project.Items))
	for _, it := range project.Items {
		pi := PresentedItem{ItemID: it.ID, LeftPole: it.PoleLow, RightPole: it.PoleHigh}
		if flips[it.ID] {
			pi.LeftPole, pi.RightPole = pi.RightPole, pi.LeftPole
			pi.Flipped = true
		}
		items = append(items, pi)
	}
	return &SessionPresentation{
		SessionID:   session.ID,
		Mode:        project.Mode,
		ScalePoints: project.ScalePoints,
		Items:       items,
	}, nil
}

// RecordResponses normalizes and stores answers on an open session and
// returns how many were stored. Answers for unknown items are skipped. A
// re-answered item replaces its earlier record.
func (s *ResponseService) RecordResponses(projectID, sessionID string, answers []Answer) (int, error) {
	project, session, err := s.lookup(projectID, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Completed() {
		return 0, ErrSessionCompleted
	}

	flips := FlipPattern(session.ID, project.ItemIDs(), project.Counterbalance)
	known := make(map[string]bool, len(project.Items))
	for _, it := range project.Items {
		known[it.ID] = true
	}

	submittedAt := s.now()
	count := 0
	for _, ans := range answers {
		if ans.ItemID == "" || !known[ans.ItemID] {
			continue
		}
		rec := models.ResponseRecord{
			ItemID:      ans.ItemID,
			RawValue:    ans.Raw,
			Flipped:     flips[ans.ItemID],
			Normalized:  Normalize(ans.Raw, flips[ans.ItemID], project.Mode, project.ScalePoints),
			SubmittedAt: submittedAt,
		}
		if existing := session.Response(ans.ItemID); existing != nil {
			*existing = rec
		} else {
			session.Responses = append(session.Responses, rec)
		}
		count++
	}

	session.Status = models.SessionInProgress
	if err := s.store.UpdateSession(session); err != nil {
		return 0, err
	}
	return count, nil
}

// CompleteSession freezes a session. Completing twice is a conflict.
func (s *ResponseService) CompleteSession(projectID, sessionID string) (*models.Session, error) {
	_, session, err := s.lookup(projectID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed() {
		return nil, ErrSessionCompleted
	}
	session.Status = models.SessionCompleted
	session.CompletedAt = s.now()
	if err := s.store.UpdateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

// SubmitSession executes the whole intake in one call: start, record,
// complete. This is the path bulk imports and kiosk-style collectors use.
func (s *ResponseService) SubmitSession(req SubmitSessionRequest) (*SubmitSessionResult, error) {
	if s.store == nil {
		return nil, errors.New("response service store is nil")
	}
	session, err := s.StartSession(req.ProjectID, req.SessionID, req.GroupKey, req.GroupLabel)
	if err != nil {
		return nil, err
	}
	count, err := s.RecordResponses(req.ProjectID, session.ID, req.Answers)
	if err != nil {
		return nil, err
	}
	if _, err := s.CompleteSession(req.ProjectID, session.ID); err != nil {
		return nil, err
	}
	s.logger.Info("session submitted",
		zap.String("project_id", req.ProjectID),
		zap.String("session_id", session.ID),
		zap.Int("responses", count))
	return &SubmitSessionResult{SessionID: session.ID, ResponsesCount: count}, nil
}

// RecomputeNormalized re-derives flip flags and normalized values for every
// stored response of a project from the current configuration. Raw values
// are never touched. Returns the number of sessions rewritten.
func (s *ResponseService) RecomputeNormalized(projectID string) (int, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return 0, err
	}
	if project == nil {
		return 0, ErrProjectNotFound
	}
	sessions, err := s.store.ListSessions(projectID)
	if err != nil {
		return 0, err
	}

	itemIDs := project.ItemIDs()
	touched := 0
	for _, session := range sessions {
		flips := FlipPattern(session.ID, itemIDs, project.Counterbalance)
		changed := false
		for i := range session.Responses {
			rec := &session.Responses[i]
			flipped := flips[rec.ItemID]
			normalized := Normalize(rec.RawValue, flipped, project.Mode, project.ScalePoints)
			if rec.Flipped != flipped || rec.Normalized != normalized {
				rec.Flipped = flipped
				rec.Normalized = normalized
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := s.store.UpdateSession(session); err != nil {
			return touched, err
		}
		touched++
	}
	s.logger.Info("normalized values recomputed",
		zap.String("project_id", projectID),
		zap.Int("sessions", touched))
	return touched, nil
}

func (s *ResponseService) lookup(projectID, sessionID string) (*models.Project, *models.Session, error) {
	project, err := s.store.GetProject(projectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil {
		return nil, nil, ErrProjectNotFound
	}
	session, err := s.store.GetSession(projectID, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	return project, session, nil
}
