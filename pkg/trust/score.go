package trust

import "math"

// Weights are the per-signal coefficients of the composite score. They MUST
// sum to 1 (report-penalty is subtracted, so its magnitude is counted, not
// its signed value) and are fully configurable at runtime.
type Weights struct {
	SocialDistance         float64
	MutualFollowers        float64
	ReactionScore          float64
	ZapVolume              float64
	ZapDiversity           float64
	SettlementReliability  float64
	QualityLabelScore      float64
	BadgeScore             float64
	ReportPenalty          float64
}

// DefaultWeights are the coefficients named in the component design.
func DefaultWeights() Weights {
	return Weights{
		SocialDistance:        0.15,
		MutualFollowers:       0.10,
		ReactionScore:         0.05,
		ZapVolume:             0.15,
		ZapDiversity:          0.10,
		SettlementReliability: 0.15,
		QualityLabelScore:     0.10,
		BadgeScore:            0.10,
		ReportPenalty:         0.10,
	}
}

// Signals carries the raw, not-yet-normalized inputs to the composite
// score. A zero value for any field degrades that signal to a neutral (0)
// contribution rather than failing the computation; "observed zero" and
// "no data" are not distinguished.
type Signals struct {
	Hops                  int // trust.Infinite if unreachable
	Mutuals               int
	Likes, Dislikes       int
	ZapVolume             float64 // total zap amount received, in asset-scale units
	UniqueZapSenders      int
	SettlementSuccess     int
	SettlementFailures    int
	QualityLabelScore     float64 // pre-weighted by social distance, already in [0,1]
	BadgeCount            int
	BadgeCap              int // badge-score saturates at this count; 0 disables the cap
	ReportWeight          float64 // trust-weighted sum of reports above threshold
	ReportWeightThreshold float64 // reports below this sum do not count against the target
}

func normalizeLog(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, math.Log1p(float64(count))/math.Log1p(100))
}

// Composite computes the weighted trust score in [0,1]. A Hops value of
// Infinite forces composite to exactly 0, regardless of every other signal:
// there is no routing through socially-disconnected keys.
func Composite(w Weights, s Signals) float64 {
	if s.Hops >= Infinite {
		return 0
	}

	socialDistance := 1.0 / float64(1+s.Hops)

	mutuals := math.Min(1, float64(s.Mutuals)/10.0)

	reaction := 0.0
	if total := s.Likes + s.Dislikes; total > 0 {
		reaction = float64(s.Likes) / float64(total)
	}

	zapVolume := 0.0
	if s.ZapVolume > 0 {
		zapVolume = math.Min(1, math.Log1p(s.ZapVolume)/math.Log1p(100000))
	}

	zapDiversity := normalizeLog(s.UniqueZapSenders)

	settlement := 0.0
	if total := s.SettlementSuccess + s.SettlementFailures; total > 0 {
		settlement = float64(s.SettlementSuccess) / float64(total)
	}

	quality := clamp01(s.QualityLabelScore)

	badge := 0.0
	if s.BadgeCap > 0 && s.BadgeCount > 0 {
		badge = math.Min(1, float64(s.BadgeCount)/float64(s.BadgeCap))
	}

	penalty := 0.0
	if s.ReportWeight > s.ReportWeightThreshold {
		penalty = math.Min(1, (s.ReportWeight-s.ReportWeightThreshold)/10.0)
	}

	score := w.SocialDistance*socialDistance +
		w.MutualFollowers*mutuals +
		w.ReactionScore*reaction +
		w.ZapVolume*zapVolume +
		w.ZapDiversity*zapDiversity +
		w.SettlementReliability*settlement +
		w.QualityLabelScore*quality +
		w.BadgeScore*badge -
		w.ReportPenalty*penalty

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PriorityThresholds are the composite cutoffs for PriorityFor.
var PriorityThresholds = [3]float64{0.8, 0.5, 0.2}

// PriorityFor maps a composite score to one of the four routing-priority
// tiers by piecewise thresholds.
func PriorityFor(composite float64) int {
	switch {
	case composite >= PriorityThresholds[0]:
		return 100
	case composite >= PriorityThresholds[1]:
		return 50
	case composite >= PriorityThresholds[2]:
		return 20
	default:
		return 5
	}
}

// CreditLimitFor linearly interpolates a credit limit between min and max
// by composite score.
func CreditLimitFor(composite float64, min, max int64) int64 {
	composite = clamp01(composite)
	return min + int64(float64(max-min)*composite)
}
