package trust

import (
	"sync"
	"time"

	"github.com/paidmesh/paidmesh/internal/metrics"
)

// SignalSource supplies the raw reputational/settlement signals Composite
// needs beyond the follow graph itself (reactions, zaps, labels, badges,
// reports, settlement history). Implementations read from the event store
// and, for settlement reliability, the connector admin API.
type SignalSource interface {
	Signals(self, target string) Signals
}

// Entry is a cached trust computation for one (self, target) pair.
type Entry struct {
	Hops         int
	Mutuals      int
	Composite    float64
	Priority     int
	CreditLimit  int64
	ComputedAt   time.Time
}

type cacheKey struct {
	self, target string
}

// Engine computes and caches composite trust scores with a TTL. Recompute
// is idempotent, so a double-compute race on expiry is harmless.
type Engine struct {
	graph   Graph
	signals SignalSource
	weights Weights
	maxHops int
	ttl     time.Duration

	minCreditLimit int64
	maxCreditLimit int64

	mu    sync.RWMutex
	cache map[cacheKey]Entry
}

// NewEngine builds a trust engine. ttl defaults to 5 minutes if <= 0;
// maxHops defaults to 3 if <= 0.
func NewEngine(graph Graph, signals SignalSource, weights Weights, ttl time.Duration, maxHops int, minCreditLimit, maxCreditLimit int64) *Engine {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxHops <= 0 {
		maxHops = 3
	}
	return &Engine{
		graph:          graph,
		signals:        signals,
		weights:        weights,
		maxHops:        maxHops,
		ttl:            ttl,
		minCreditLimit: minCreditLimit,
		maxCreditLimit: maxCreditLimit,
		cache:          make(map[cacheKey]Entry),
	}
}

// SetWeights replaces the composite-score coefficients.
func (e *Engine) SetWeights(w Weights) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
}

// Evaluate returns the cached trust entry for (self, target), recomputing
// it if absent or expired.
func (e *Engine) Evaluate(self, target string) Entry {
	key := cacheKey{self, target}

	e.mu.RLock()
	entry, ok := e.cache[key]
	weights := e.weights
	e.mu.RUnlock()

	if ok && time.Since(entry.ComputedAt) < e.ttl {
		return entry
	}

	start := time.Now()
	metrics.TrustRecomputations.Inc()
	defer func() { metrics.TrustRecomputeDuration.Observe(time.Since(start).Seconds()) }()

	hops := Distance(e.graph, self, target, e.maxHops)
	mutuals := Mutuals(e.graph, self, target)

	signals := Signals{Hops: hops, Mutuals: mutuals}
	if e.signals != nil {
		extra := e.signals.Signals(self, target)
		extra.Hops = hops
		extra.Mutuals = mutuals
		signals = extra
	}

	composite := Composite(weights, signals)

	oldPriority := entry.Priority
	newPriority := PriorityFor(composite)
	entry = Entry{
		Hops:        hops,
		Mutuals:     mutuals,
		Composite:   composite,
		Priority:    newPriority,
		CreditLimit: CreditLimitFor(composite, e.minCreditLimit, e.maxCreditLimit),
		ComputedAt:  time.Now(),
	}

	if ok && oldPriority != newPriority {
		metrics.TrustPriorityUpdates.Inc()
	}

	e.mu.Lock()
	e.cache[key] = entry
	e.mu.Unlock()

	return entry
}

// Invalidate drops the cached entry for (self, target), forcing a
// recompute on the next Evaluate call.
func (e *Engine) Invalidate(self, target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, cacheKey{self, target})
}
