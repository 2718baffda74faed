package types

import "time"

// RiskSignal is the externally computed failure-probability estimate for
// one (store, lineage) pair. It is read-only here; absence is a normal
// state, never a zero score.
type RiskSignal struct {
	Score       float64   `json:"score"` // normalized to [0,1]
	RefreshedAt time.Time `json:"refreshed_at"`
}
