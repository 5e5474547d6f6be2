package search

import (
	"sort"

	"github.com/vaultrank/vaultrank/internal/weights"
)

// Fusion constants.
const (
	// DefaultColdStartFraction is the vector weight increase for lexically
	// sparse queries.
	DefaultColdStartFraction = 0.10

	// priorDivisor scales the summed prior terms into a small adjustment.
	priorDivisor = 10.0

	// multiplierFloor and multiplierCeil bound the prior multiplier so
	// heuristics can nudge a ranking but never dominate it.
	multiplierFloor = 0.95
	multiplierCeil  = 1.05
)

// PriorTerm is one signed heuristic adjustment derived from a candidate's
// filename or content. Boosts carry positive values, penalties negative.
type PriorTerm struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Fuser combines a candidate's weighted channel scores with a bounded
// heuristic prior into a single relevance score. It has no error path:
// missing channel scores contribute zero and never drop a candidate.
type Fuser struct {
	// ColdStartFraction is applied to the vector weight when the caller
	// signals a lexically sparse query.
	ColdStartFraction float64
}

// NewFuser returns a fuser with the default cold-start fraction.
func NewFuser() *Fuser {
	return &Fuser{ColdStartFraction: DefaultColdStartFraction}
}

// NewFuserWithColdStart returns a fuser with a custom cold-start fraction.
// Fractions at or below zero fall back to the default.
func NewFuserWithColdStart(fraction float64) *Fuser {
	if fraction <= 0 {
		fraction = DefaultColdStartFraction
	}
	return &Fuser{ColdStartFraction: fraction}
}

// Fuse computes the fused relevance score for one candidate:
//
//	raw        = Σ(weight_i * score_i)
//	adjustment = Σ(prior terms) / 10
//	final      = raw * clamp(1 + adjustment, 0.95, 1.05)
//
// With no prior terms the multiplier is exactly 1 and final == raw.
func (f *Fuser) Fuse(c *Candidate, profile weights.Profile, terms []PriorTerm) float64 {
	raw := profile.Path*c.Channels.Path +
		profile.Short*c.Channels.Short +
		profile.Title*c.Channels.Title +
		profile.Body*c.Channels.Body +
		profile.Vector*c.Channels.Vector

	return raw * priorMultiplier(terms)
}

// FuseAll scores every candidate in the pool and sorts it by descending
// final score, ties broken by earliest pool position. When coldStart is
// set, the vector weight is boosted once before scoring. priors supplies
// the heuristic terms per candidate and may be nil.
func (f *Fuser) FuseAll(pool []*Candidate, profile weights.Profile, priors func(*Candidate) []PriorTerm, coldStart bool) {
	if coldStart {
		profile = profile.WithVectorBoost(f.ColdStartFraction)
	}

	for _, c := range pool {
		var terms []PriorTerm
		if priors != nil {
			terms = priors(c)
		}
		c.PriorScore = SumPriorTerms(terms)
		c.FinalScore = f.Fuse(c, profile, terms)
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].FinalScore != pool[j].FinalScore {
			return pool[i].FinalScore > pool[j].FinalScore
		}
		return pool[i].pos < pool[j].pos
	})
}

// SumPriorTerms returns the signed sum of the prior terms.
func SumPriorTerms(terms []PriorTerm) float64 {
	sum := 0.0
	for _, t := range terms {
		sum += t.Value
	}
	return sum
}

// priorMultiplier converts prior terms into the clamped score multiplier.
func priorMultiplier(terms []PriorTerm) float64 {
	if len(terms) == 0 {
		return 1.0
	}
	m := 1.0 + SumPriorTerms(terms)/priorDivisor
	if m < multiplierFloor {
		return multiplierFloor
	}
	if m > multiplierCeil {
		return multiplierCeil
	}
	return m
}
