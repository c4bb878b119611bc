package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	following map[string][]string
	followers map[string][]string
}

func (g *fakeGraph) Following(key string) []string { return g.following[key] }
func (g *fakeGraph) Followers(key string) []string { return g.followers[key] }

func newFakeGraph(edges map[string][]string) *fakeGraph {
	followers := make(map[string][]string)
	for from, tos := range edges {
		for _, to := range tos {
			followers[to] = append(followers[to], from)
		}
	}
	return &fakeGraph{following: edges, followers: followers}
}

func TestDistanceDirectAndTransitive(t *testing.T) {
	g := newFakeGraph(map[string][]string{
		"A": {"B"},
		"B": {"C"},
	})
	require.Equal(t, 0, Distance(g, "A", "A", 3))
	require.Equal(t, 1, Distance(g, "A", "B", 3))
	require.Equal(t, 2, Distance(g, "A", "C", 3))
}

func TestDistanceUnreachableIsInfinite(t *testing.T) {
	g := newFakeGraph(map[string][]string{"A": {"B"}})
	require.Equal(t, Infinite, Distance(g, "A", "Z", 3))
}

// TestTrustFloorForDisconnectedTarget covers universal invariant 5:
// composite == 0 whenever distance == Infinite, regardless of other
// signals.
func TestTrustFloorForDisconnectedTarget(t *testing.T) {
	w := DefaultWeights()
	s := Signals{
		Hops:              Infinite,
		ZapVolume:         1000000,
		UniqueZapSenders:  50,
		SettlementSuccess: 100,
	}
	require.Equal(t, 0.0, Composite(w, s))
}

func TestPriorityThresholds(t *testing.T) {
	require.Equal(t, 100, PriorityFor(0.9))
	require.Equal(t, 50, PriorityFor(0.6))
	require.Equal(t, 20, PriorityFor(0.3))
	require.Equal(t, 5, PriorityFor(0.1))
}

// TestTrustDerivedPriorityUpdate covers S6: composite rising from 0.45 to
// 0.82 moves priority from 20 to 100.
func TestTrustDerivedPriorityUpdate(t *testing.T) {
	require.Equal(t, 20, PriorityFor(0.45))
	require.Equal(t, 100, PriorityFor(0.82))
}

type staticSignals struct{ s Signals }

func (s staticSignals) Signals(self, target string) Signals { return s.s }

func TestEngineCachesWithinTTL(t *testing.T) {
	g := newFakeGraph(map[string][]string{"A": {"B"}})
	src := staticSignals{s: Signals{SettlementSuccess: 1}}
	e := NewEngine(g, src, DefaultWeights(), time.Hour, 3, 0, 1000)

	first := e.Evaluate("A", "B")
	// Mutate the underlying graph; cached entry should not reflect it
	// until invalidated or expired.
	g.following["A"] = nil
	second := e.Evaluate("A", "B")
	require.Equal(t, first.Composite, second.Composite)

	e.Invalidate("A", "B")
	third := e.Evaluate("A", "B")
	require.NotEqual(t, first.Hops, third.Hops)
}
