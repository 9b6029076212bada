package services

import "github.com/dipolehq/dipole/internal/models"

// UngroupedKey is the synthetic partition for sessions without a group key.
const UngroupedKey = "ungrouped"

// GroupProfile carries per-item statistics for one partition of sessions.
type GroupProfile struct {
	Key              string            `json:"key"`
	Label            string            `json:"label"`
	Items            []*ItemStatistics `json:"items"`
	ParticipantCount int               `json:"participant_count"`
}

// CompareGroups partitions completed sessions by group key and computes
// per-item statistics for each partition. Groups come back in discovery
// order (first occurrence while scanning sessions), items stay in
// configuration order. The display label is the first encountered session's
// group label, falling back to the key itself. Incomplete sessions are
// skipped here even though callers are expected to pre-filter.
func CompareGroups(sessions []*models.Session, items []models.ScaleItem, mode models.ScaleMode, points int) ([]*GroupProfile, error) {
	byKey := make(map[string][]*models.Session)
	labels := make(map[string]string)
	var order []string
	for _, s := range sessions {
		if !s.Completed() {
			continue
		}
		key := s.GroupKey
		if key == "" {
			key = UngroupedKey
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
			if s.GroupLabel != "" {
				labels[key] = s.GroupLabel
			} else {
				labels[key] = key
			}
		}
		byKey[key] = append(byKey[key], s)
	}

	profiles := make([]*GroupProfile, 0, len(order))
	for _, key := range order {
		members := byKey[key]
		gp := &GroupProfile{Key: key, Label: labels[key], ParticipantCount: len(members)}
		for _, it := range items {
			st, err := ItemStats(it.ID, itemValues(members, it.ID), mode, points)
			if err != nil {
				return nil, err
			}
			gp.Items = append(gp.Items, st)
		}
		profiles = append(profiles, gp)
	}
	return profiles, nil
}

// itemValues collects the normalized values recorded for itemID across
// completed sessions, in session order.
func itemValues(sessions []*models.Session, itemID string) []float64 {
	var vals []float64
	for _, s := range sessions {
		if !s.Completed() {
			continue
		}
		if r := s.Response(itemID); r != nil {
			vals = append(vals, r.Normalized)
		}
	}
	return vals
}
