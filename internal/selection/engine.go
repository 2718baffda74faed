package selection

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/types"
)

// Weights are the tunable scoring constants. Defaults keep the observed
// STORE:ACCOUNT:BRAND selection ratio near 3:2:1, give rotation priority a
// visible but secondary pull, let 30-day staleness outweigh 2-day several
// times over, and make a recent FAIL dominate everything but scope level.
type Weights struct {
	BaseStore   float64
	BaseAccount float64
	BaseBrand   float64

	// PriorityFactor scales rotation_priority (0..100) into the score.
	PriorityFactor float64

	// RecencyMax is the score of a never-verified lineage; verified
	// lineages approach it as staleness grows.
	RecencyMax float64
	// RecencyScaleDays controls how fast staleness saturates.
	RecencyScaleDays float64

	// FailBoost is added while the last recorded outcome is FAIL.
	FailBoost float64

	// RiskShare is the weight of the external risk score in the blend when
	// one exists; the rule score carries the remainder.
	RiskShare float64
}

func DefaultWeights() Weights {
	return Weights{
		BaseStore:        30,
		BaseAccount:      20,
		BaseBrand:        10,
		PriorityFactor:   0.25,
		RecencyMax:       40,
		RecencyScaleDays: 10,
		FailBoost:        60,
		RiskShare:        0.4,
	}
}

// Candidate pairs a template with the store's current coverage state and
// the optional external risk signal for its lineage.
type Candidate struct {
	Template *types.Template
	Coverage *types.CoverageRecord // nil when the lineage was never verified at the store
	Risk     *types.RiskSignal     // nil when the provider has no trusted score
}

// Selected is one chosen template with its scoring context and the
// photo-requirement decision for UI display.
type Selected struct {
	Template      *types.Template
	Coverage      *types.CoverageRecord
	Score         float64
	PhotoRequired bool
	PhotoReason   string
}

// Engine is the pure scoring/ranking function. It holds no mutable state
// beyond its constants; one instance is shared by every caller.
type Engine struct {
	weights Weights
	seed    int64
}

func NewEngine(weights Weights, seed int64) *Engine {
	return &Engine{weights: weights, seed: seed}
}

// Select filters, scores and ranks the candidates and returns up to
// desiredCount templates with no duplicate lineage. A short or empty
// result is valid, never an error. Identical inputs produce identical
// output; ties between equal scores break on a seeded shuffle.
func (e *Engine) Select(store types.StoreContext, candidates []Candidate, desiredCount int, now time.Time) []Selected {
	if desiredCount <= 0 {
		return nil
	}

	type scored struct {
		candidate Candidate
		score     float64
		tieBreak  float64
	}

	eligible := make([]scored, 0, len(candidates))
	for _, cand := range candidates {
		if !e.Eligible(store, cand.Template) {
			continue
		}
		eligible = append(eligible, scored{
			candidate: cand,
			score:     e.Score(cand, now),
		})
	}
	if len(eligible) == 0 {
		return nil
	}

	// Tie-break values must not depend on caller ordering: fix the order
	// by template id before drawing from the seeded source.
	sort.Slice(eligible, func(i, j int) bool {
		return lessUUID(eligible[i].candidate.Template.ID, eligible[j].candidate.Template.ID)
	})
	rng := rand.New(rand.NewSource(e.seed))
	for i := range eligible {
		eligible[i].tieBreak = rng.Float64()
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score != eligible[j].score {
			return eligible[i].score > eligible[j].score
		}
		return eligible[i].tieBreak > eligible[j].tieBreak
	})

	selected := make([]Selected, 0, desiredCount)
	seenLineages := make(map[uuid.UUID]struct{}, desiredCount)
	for _, s := range eligible {
		lineage := s.candidate.Template.LineageID
		if _, dup := seenLineages[lineage]; dup {
			// Versioning can leave more than one row per lineage in the
			// pool; only the best-scoring one is presented.
			continue
		}
		seenLineages[lineage] = struct{}{}
		photoRequired, photoReason := PhotoRequirement(s.candidate.Template)
		selected = append(selected, Selected{
			Template:      s.candidate.Template,
			Coverage:      s.candidate.Coverage,
			Score:         s.score,
			PhotoRequired: photoRequired,
			PhotoReason:   photoReason,
		})
		if len(selected) == desiredCount {
			break
		}
	}
	return selected
}

// Eligible applies the hard filter: active, in rotation, owner on the
// store's ancestry chain, and subtype filter satisfied.
func (e *Engine) Eligible(store types.StoreContext, tpl *types.Template) bool {
	if tpl == nil {
		return false
	}
	if !tpl.IsActive || !tpl.IncludeInRotation {
		return false
	}
	if !tpl.Scope().IsAncestorOf(store) {
		return false
	}
	return tpl.AppliesToSubtype(store.Subtype)
}

// Score computes the blended score for one candidate. The rule-based part
// is normalized to [0,1] before blending so the risk share stays a true
// percentage of the final score.
func (e *Engine) Score(cand Candidate, now time.Time) float64 {
	w := e.weights
	rule := e.baseScore(cand.Template.ScopeLevel)
	rule += w.PriorityFactor * float64(cand.Template.RotationPriority)
	rule += e.recencyScore(cand.Coverage, now)
	if cand.Coverage.LastFailed() {
		rule += w.FailBoost
	}

	maxRule := w.BaseStore + w.PriorityFactor*100 + w.RecencyMax + w.FailBoost
	norm := rule / maxRule

	if cand.Risk == nil {
		return norm
	}
	risk := clamp01(cand.Risk.Score)
	return (1-w.RiskShare)*norm + w.RiskShare*risk
}

func (e *Engine) baseScore(level types.ScopeLevel) float64 {
	switch level {
	case types.ScopeLevelStore:
		return e.weights.BaseStore
	case types.ScopeLevelAccount:
		return e.weights.BaseAccount
	default:
		return e.weights.BaseBrand
	}
}

// recencyScore grows monotonically with staleness and saturates at
// RecencyMax. Never-verified scores the cap (infinitely stale).
func (e *Engine) recencyScore(coverage *types.CoverageRecord, now time.Time) float64 {
	w := e.weights
	if coverage.NeverVerified() {
		return w.RecencyMax
	}
	days := now.Sub(*coverage.LastVerifiedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return w.RecencyMax * (1 - math.Exp(-days/w.RecencyScaleDays))
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

func lessUUID(a, b uuid.UUID) bool {
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
