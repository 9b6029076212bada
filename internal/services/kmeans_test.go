package services

import (
	"reflect"
	"testing"

	"github.com/dipolehq/dipole/internal/models"
)

var clusterItems = []models.ScaleItem{{ID: "warm_cold"}, {ID: "calm_tense"}}

func TestClusterInvalidConfiguration(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": 0}),
	}
	c := NewSeededClusterer(1)
	if _, err := c.Cluster(sessions, clusterItems, 0, 10); err == nil {
		t.Fatalf("k=0 accepted, want error")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalidConfig {
		t.Fatalf("k=0: err=%v, want %s", err, ErrorInvalidConfig)
	}
	if _, err := c.Cluster(sessions, clusterItems, 2, 0); err == nil {
		t.Fatalf("maxIterations=0 accepted, want error")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalidConfig {
		t.Fatalf("maxIterations=0: err=%v, want %s", err, ErrorInvalidConfig)
	}
}

func TestClusterInsufficientSessions(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": -50}),
		completedSession("s2", "", "", map[string]float64{"warm_cold": 50}),
	}
	out, err := NewSeededClusterer(1).Cluster(sessions, clusterItems, 5, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("clusters=%d, want 0 when completed sessions < k", len(out))
	}
}

func TestClusterSeededRunsIdentical(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": -50, "calm_tense": -40}),
		completedSession("s2", "", "", map[string]float64{"warm_cold": -45, "calm_tense": -50}),
		completedSession("s3", "", "", map[string]float64{"warm_cold": -40, "calm_tense": -45}),
		completedSession("s4", "", "", map[string]float64{"warm_cold": 40, "calm_tense": 50}),
		completedSession("s5", "", "", map[string]float64{"warm_cold": 50, "calm_tense": 45}),
		completedSession("s6", "", "", map[string]float64{"warm_cold": 45, "calm_tense": 40}),
	}
	first, err := NewSeededClusterer(42).Cluster(sessions, clusterItems, 2, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := NewSeededClusterer(42).Cluster(sessions, clusterItems, 2, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("seeded runs diverged:\n%+v\n%+v", first, second)
	}
}

func TestClusterSingleClusterCentroid(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": -50, "calm_tense": 10}),
		completedSession("s2", "", "", map[string]float64{"warm_cold": 0, "calm_tense": 20}),
		completedSession("s3", "", "", map[string]float64{"warm_cold": 50, "calm_tense": 30}),
	}
	out, err := NewSeededClusterer(7).Cluster(sessions, clusterItems, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("clusters=%d, want 1", len(out))
	}
	got := out[0]
	if got.Cluster != 0 || got.Size != 3 || len(got.Members) != 3 {
		t.Fatalf("cluster=%+v, want id 0 with all three members", got)
	}
	if got.Centroid[0] != 0 || got.Centroid[1] != 20 {
		t.Fatalf("centroid=%v, want [0 20]", got.Centroid)
	}
}

func TestClusterZeroFillsMissingResponses(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": 30}),
		completedSession("s2", "", "", nil), // answered nothing
	}
	out, err := NewSeededClusterer(3).Cluster(sessions, clusterItems, 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Size != 2 {
		t.Fatalf("clusters=%+v, want one cluster of both sessions", out)
	}
	// s2's missing answers count as neutral 0, so the mean is 15, not 30.
	if out[0].Centroid[0] != 15 || out[0].Centroid[1] != 0 {
		t.Fatalf("centroid=%v, want [15 0]", out[0].Centroid)
	}
}

func TestClusterSingletonsWhenKEqualsN(t *testing.T) {
	values := map[string]float64{"s1": -50, "s2": 0, "s3": 50}
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": values["s1"]}),
		completedSession("s2", "", "", map[string]float64{"warm_cold": values["s2"]}),
		completedSession("s3", "", "", map[string]float64{"warm_cold": values["s3"]}),
	}
	items := []models.ScaleItem{{ID: "warm_cold"}}
	out, err := NewSeededClusterer(11).Cluster(sessions, items, 3, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("clusters=%d, want 3 singletons", len(out))
	}
	seen := map[string]bool{}
	for _, cl := range out {
		if cl.Size != 1 || len(cl.Members) != 1 {
			t.Fatalf("cluster=%+v, want a singleton", cl)
		}
		id := cl.Members[0]
		if seen[id] {
			t.Fatalf("session %s assigned twice", id)
		}
		seen[id] = true
		if cl.Centroid[0] != values[id] {
			t.Fatalf("cluster of %s has centroid %v, want [%v]", id, cl.Centroid, values[id])
		}
	}
	if len(seen) != 3 {
		t.Fatalf("members=%v, want every session exactly once", seen)
	}
}

func TestClusterSkipsIncompleteSessions(t *testing.T) {
	sessions := []*models.Session{
		completedSession("s1", "", "", map[string]float64{"warm_cold": -50}),
		completedSession("s2", "", "", map[string]float64{"warm_cold": 50}),
		{ID: "s3", Status: models.SessionInProgress},
	}
	items := []models.ScaleItem{{ID: "warm_cold"}}
	out, err := NewSeededClusterer(5).Cluster(sessions, items, 2, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var total int
	for _, cl := range out {
		total += cl.Size
		for _, id := range cl.Members {
			if id == "s3" {
				t.Fatalf("incomplete session clustered: %+v", out)
			}
		}
	}
	if total != 2 {
		t.Fatalf("clustered %d sessions, want 2", total)
	}
}
