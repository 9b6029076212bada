package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dipolehq/dipole/internal/models"
)

type stubSessionStore struct {
	project  *models.Project
	sessions map[string]*models.Session
	updates  int
}

func (s *stubSessionStore) GetProject(id string) (*models.Project, error) {
	if s.project != nil && s.project.ID == id {
		return s.project, nil
	}
	return nil, nil
}

func (s *stubSessionStore) AddSession(sess *models.Session) error {
	if s.sessions == nil {
		s.sessions = map[string]*models.Session{}
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubSessionStore) GetSession(projectID, sessionID string) (*models.Session, error) {
	if sess, ok := s.sessions[sessionID]; ok && sess.ProjectID == projectID {
		return sess, nil
	}
	return nil, nil
}

func (s *stubSessionStore) UpdateSession(sess *models.Session) error {
	s.updates++
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubSessionStore) ListSessions(projectID string) ([]*models.Session, error) {
	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.ProjectID == projectID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func testProject(counterbalance bool) *models.Project {
	return &models.Project{
		ID:             "P1",
		Name:           "Office climate",
		Mode:           models.ModeDiscrete,
		ScalePoints:    7,
		Counterbalance: counterbalance,
		Items: []models.ScaleItem{
			{ID: "warm_cold", PoleLow: "Cold", PoleHigh: "Warm"},
			{ID: "calm_tense", PoleLow: "Tense", PoleHigh: "Calm"},
		},
	}
}

func TestSubmitSessionSuccess(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) }
	svc.idGenerator = func() string { return "SESS12345678" }

	result, err := svc.SubmitSession(SubmitSessionRequest{
		ProjectID: "P1",
		GroupKey:  "control",
		Answers: []Answer{
			{ItemID: "warm_cold", Raw: 6},
			{ItemID: "calm_tense", Raw: 0},
			{ItemID: "unknown_item", Raw: 3},
		},
	})
	if err != nil {
		t.Fatalf("SubmitSession returned error: %v", err)
	}
	if result.SessionID != "SESS12345678" {
		t.Fatalf("session id = %q, want SESS12345678", result.SessionID)
	}
	if result.ResponsesCount != 2 {
		t.Fatalf("responses count = %d, want 2 (unknown item skipped)", result.ResponsesCount)
	}

	sess := store.sessions["SESS12345678"]
	if sess == nil {
		t.Fatalf("session not stored")
	}
	if !sess.Completed() || sess.CompletedAt.IsZero() {
		t.Fatalf("session not frozen: status=%s completedAt=%v", sess.Status, sess.CompletedAt)
	}
	if len(sess.Responses) != 2 {
		t.Fatalf("responses stored = %d, want 2", len(sess.Responses))
	}
	wc := sess.Response("warm_cold")
	if wc.Flipped || wc.Normalized != 50 {
		t.Fatalf("warm_cold record = %+v, want unflipped 50", wc)
	}
	ct := sess.Response("calm_tense")
	if ct.Flipped || ct.Normalized != -50 {
		t.Fatalf("calm_tense record = %+v, want unflipped -50", ct)
	}
	if !wc.SubmittedAt.Equal(svc.now()) {
		t.Fatalf("submitted at = %v, want %v", wc.SubmittedAt, svc.now())
	}
}

func TestSubmitSessionDerivesFlips(t *testing.T) {
	project := testProject(true)
	store := &stubSessionStore{project: project}
	svc := NewResponseService(store, nil)
	svc.idGenerator = func() string { return "flipsess" }

	raws := map[string]float64{"warm_cold": 5, "calm_tense": 1}
	_, err := svc.SubmitSession(SubmitSessionRequest{
		ProjectID: "P1",
		Answers:   []Answer{{ItemID: "warm_cold", Raw: 5}, {ItemID: "calm_tense", Raw: 1}},
	})
	if err != nil {
		t.Fatalf("SubmitSession returned error: %v", err)
	}

	// Intake must agree with the pattern a renderer would derive.
	flips := FlipPattern("flipsess", project.ItemIDs(), true)
	sess := store.sessions["flipsess"]
	for _, rec := range sess.Responses {
		if rec.Flipped != flips[rec.ItemID] {
			t.Fatalf("item %s stored flip %v, pattern says %v", rec.ItemID, rec.Flipped, flips[rec.ItemID])
		}
		want := Normalize(raws[rec.ItemID], flips[rec.ItemID], project.Mode, project.ScalePoints)
		if rec.Normalized != want {
			t.Fatalf("item %s normalized %v, want %v", rec.ItemID, rec.Normalized, want)
		}
	}
}

func TestSubmitSessionProjectMissing(t *testing.T) {
	svc := NewResponseService(&stubSessionStore{}, nil)
	_, err := svc.SubmitSession(SubmitSessionRequest{ProjectID: "missing"})
	if !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected project not found, got %v", err)
	}
}

func TestStartSessionConflict(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)
	if _, err := svc.StartSession("P1", "dup", "", ""); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if _, err := svc.StartSession("P1", "dup", "", ""); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected session exists, got %v", err)
	}
}

func TestRecordResponsesOnCompletedSession(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)
	if _, err := svc.SubmitSession(SubmitSessionRequest{ProjectID: "P1", SessionID: "done"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	_, err := svc.RecordResponses("P1", "done", []Answer{{ItemID: "warm_cold", Raw: 3}})
	if !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected session completed, got %v", err)
	}
}

func TestRecordResponsesReplacesAnswer(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)
	if _, err := svc.StartSession("P1", "s1", "", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.RecordResponses("P1", "s1", []Answer{{ItemID: "warm_cold", Raw: 6}}); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	if _, err := svc.RecordResponses("P1", "s1", []Answer{{ItemID: "warm_cold", Raw: 0}}); err != nil {
		t.Fatalf("second record failed: %v", err)
	}
	sess := store.sessions["s1"]
	if len(sess.Responses) != 1 {
		t.Fatalf("responses = %d, want 1 (re-answer replaces)", len(sess.Responses))
	}
	if sess.Responses[0].Normalized != -50 {
		t.Fatalf("normalized = %v, want -50 from the replacement", sess.Responses[0].Normalized)
	}
	if sess.Status != models.SessionInProgress {
		t.Fatalf("status = %s, want %s", sess.Status, models.SessionInProgress)
	}
}

func TestCompleteSessionTwice(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)
	if _, err := svc.StartSession("P1", "s1", "", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := svc.CompleteSession("P1", "s1"); err != nil {
		t.Fatalf("first complete failed: %v", err)
	}
	if _, err := svc.CompleteSession("P1", "s1"); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected session completed, got %v", err)
	}
}

func TestPresentationSwapsFlippedPoles(t *testing.T) {
	project := testProject(true)
	store := &stubSessionStore{project: project}
	svc := NewResponseService(store, nil)
	if _, err := svc.StartSession("P1", "view1", "", ""); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	pres, err := svc.Presentation("P1", "view1")
	if err != nil {
		t.Fatalf("Presentation returned error: %v", err)
	}
	if pres.Mode != models.ModeDiscrete || pres.ScalePoints != 7 {
		t.Fatalf("presentation carries mode=%s points=%d, want discrete 7", pres.Mode, pres.ScalePoints)
	}
	flips := FlipPattern("view1", project.ItemIDs(), true)
	if len(pres.Items) != len(project.Items) {
		t.Fatalf("items = %d, want %d", len(pres.Items), len(project.Items))
	}
	for i, pi := range pres.Items {
		def := project.Items[i]
		if pi.ItemID != def.ID {
			t.Fatalf("item %d = %s, want configuration order (%s)", i, pi.ItemID, def.ID)
		}
		if pi.Flipped != flips[def.ID] {
			t.Fatalf("item %s flip flag %v, pattern says %v", def.ID, pi.Flipped, flips[def.ID])
		}
		wantLeft, wantRight := def.PoleLow, def.PoleHigh
		if flips[def.ID] {
			wantLeft, wantRight = def.PoleHigh, def.PoleLow
		}
		if pi.LeftPole != wantLeft || pi.RightPole != wantRight {
			t.Fatalf("item %s poles = %q/%q, want %q/%q", def.ID, pi.LeftPole, pi.RightPole, wantLeft, wantRight)
		}
	}

	if _, err := svc.Presentation("P1", "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestRecomputeNormalized(t *testing.T) {
	store := &stubSessionStore{project: testProject(false)}
	svc := NewResponseService(store, nil)

	// Stored values are stale: flips recorded under a configuration that no
	// longer counterbalances, normalized numbers plain wrong.
	stale := &models.Session{
		ID: "old1", ProjectID: "P1", Status: models.SessionCompleted,
		Responses: []models.ResponseRecord{
			{ItemID: "warm_cold", RawValue: 6, Flipped: true, Normalized: 999},
			{ItemID: "calm_tense", RawValue: 3, Flipped: true, Normalized: -999},
		},
	}
	if err := store.AddSession(stale); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	touched, err := svc.RecomputeNormalized("P1")
	if err != nil {
		t.Fatalf("RecomputeNormalized returned error: %v", err)
	}
	if touched != 1 {
		t.Fatalf("touched = %d, want 1", touched)
	}
	wc := store.sessions["old1"].Response("warm_cold")
	if wc.Flipped || wc.Normalized != 50 {
		t.Fatalf("warm_cold after recompute = %+v, want unflipped 50", wc)
	}
	ct := store.sessions["old1"].Response("calm_tense")
	if ct.Flipped || ct.Normalized != 0 {
		t.Fatalf("calm_tense after recompute = %+v, want unflipped 0", ct)
	}
	if wc.RawValue != 6 || ct.RawValue != 3 {
		t.Fatalf("raw values changed: %v/%v", wc.RawValue, ct.RawValue)
	}

	// A second pass finds nothing to rewrite.
	touched, err = svc.RecomputeNormalized("P1")
	if err != nil {
		t.Fatalf("second recompute returned error: %v", err)
	}
	if touched != 0 {
		t.Fatalf("touched = %d on the second pass, want 0", touched)
	}
}
