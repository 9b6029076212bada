package models

import "time"

// ScaleMode selects how raw values map onto the signed scale.
type ScaleMode string

const (
	ModeDiscrete   ScaleMode = "discrete"   // stepped widget with ScalePoints positions
	ModeContinuous ScaleMode = "continuous" // slider captured on 0..100
)

// SessionStatus tracks a session through its lifecycle. Completed
// sessions are frozen and feed every aggregate computation.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "created"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
)

// ScaleItem is one paired-pole item: two opposing labels with the
// low pole anchored on the negative half of the scale.
type ScaleItem struct {
	ID       string
	PoleLow  string // label at the negative end before any flip
	PoleHigh string // label at the positive end before any flip
	Category string // optional tag; never enters computation
}

// ResponseRecord stores one answered item within a session.
type ResponseRecord struct {
	ItemID      string
	RawValue    float64 // as captured from the widget
	Flipped     bool    // pole orientation the item was rendered with
	Normalized  float64 // signed value on [-50, +50], one decimal
	SubmittedAt time.Time
}

// Session is a single participant's pass through a project.
type Session struct {
	ID          string
	ProjectID   string
	GroupKey    string
	GroupLabel  string
	Status      SessionStatus
	Responses   []ResponseRecord
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Completed reports whether the session has been frozen.
func (s *Session) Completed() bool { return s.Status == SessionCompleted }

// Response returns the record for itemID, or nil when unanswered.
func (s *Session) Response(itemID string) *ResponseRecord {
	for i := range s.Responses {
		if s.Responses[i].ItemID == itemID {
			return &s.Responses[i]
		}
	}
	return nil
}

// Project is a study configuration: scale setup plus ordered items.
// The order of Items is the configuration order every deterministic
// computation keys off.
type Project struct {
	ID             string
	Name           string
	Mode           ScaleMode
	ScalePoints    int // positions per item; meaningful in discrete mode only
	Counterbalance bool
	Items          []ScaleItem
}

// ItemIDs returns the item identifiers in configuration order.
func (p *Project) ItemIDs() []string {
	ids := make([]string, len(p.Items))
	for i, it := range p.Items {
		ids[i] = it.ID
	}
	return ids
}
