// Package markov implements the pure inference math of the pairwise
// four-state continuous-time Markov chains (C4): state transitions,
// Pearson correlation, and the bidding formulas that turn a chain's
// transition statistics into a per-exe log-probability update.
//
// Every function here takes graph value types by pointer but performs no
// graph mutation beyond the chain and exe fields the spec assigns to this
// component -- there is no dependency on the store, the scanner, or the
// event loop, which keeps this package the easiest in the module to test
// exhaustively.
package markov

import (
	"log/slog"
	"math"

	"github.com/ja7ad/prefetchd/internal/graph"
)

// Transition updates c's state to match (aRunning, bRunning) at logical
// time now, recording the dwell-time and transition-count statistics.
//
// If the computed state doesn't differ from c.State, this is a no-op (a
// warning is logged, matching the original's idempotency guard). If it
// differs but ChangeTimestamp isn't strictly less than now (e.g. a second
// transition computed within the same tick), it is also skipped: a chain
// can only leave the state it most recently entered once logical time has
// actually advanced past that entry.
func Transition(c *graph.Chain, aRunning, bRunning bool, now float64) {
	sNew := graph.ChainStateFor(aRunning, bRunning)
	if sNew == c.State {
		slog.Warn("markov: no-op transition requested", "state", c.State)
		return
	}
	if !(c.ChangeTimestamp < now) {
		return
	}

	sOld := c.State
	delta := now - c.ChangeTimestamp

	c.Weight[sOld][sOld]++
	// Uses the post-incremented transition-to-new-state count as the
	// denominator, not the self-transition count -- preserved exactly as
	// specified, even though it reads unusually.
	c.Weight[sOld][sNew]++
	denom := c.Weight[sOld][sNew]
	if denom > 0 {
		c.TimeToLeave[sOld] += (delta - c.TimeToLeave[sOld]) / float64(denom)
	}

	c.State = sNew
	c.ChangeTimestamp = now
}

// Correlation computes the Pearson product-moment correlation between the
// two Bernoulli "exe running" variables sampled at each half-cycle tick,
// over the chain's full observed history. t is the graph's logical time,
// a/b are the two exes' cumulative running time, ab is the chain's time in
// state 3 (both running).
//
// Returns 0 if either a or b is 0 or equal to t (no variance to correlate
// against); otherwise the result is in [-1, 1].
func Correlation(t, a, b, ab float64) float64 {
	if a == 0 || a == t || b == 0 || b == t {
		return 0
	}
	num := t*ab - a*b
	den := math.Sqrt(a * b * (t - a) * (t - b))
	if den == 0 {
		return 0
	}
	return num / den
}

// BidForExe computes P(y runs in next period | current chain state) and
// accumulates the corresponding log-probability-of-not-needed into y. yBit
// identifies which endpoint y is (graph.StateA or graph.StateB); y should
// not be the currently-running endpoint. correlation is the chain's
// Pearson correlation (or 1.0 if correlation is disabled); only its
// magnitude is used.
//
// Bids nothing if the chain has never left its current state, or if the
// dwell time in that state is at or below one second (too little signal to
// extrapolate a rate from).
func BidForExe(c *graph.Chain, y *graph.Exe, yBit graph.ChainState, correlation float64) {
	s := int(c.State)
	if c.Weight[s][s] == 0 || c.TimeToLeave[s] <= 1 {
		return
	}

	pStateChange := 1 - math.Exp(-float64(c.Cycle)*1.5/c.TimeToLeave[s])
	pYNext := float64(c.Weight[s][int(yBit)]+c.Weight[s][3]) / (float64(c.Weight[s][s]) + 0.01)
	pRuns := math.Abs(correlation) * pStateChange * pYNext
	y.Lnprob += math.Log(1 - pRuns)
}

// BidInExes is the top-level per-chain bidding step of the predictor (C5):
// if the chain's current state has never been left, it contributes
// nothing. Otherwise it computes the correlation (or treats it as 1.0 if
// useCorrelation is false) and bids into whichever of a/b is not currently
// in the running bit of the state.
func BidInExes(c *graph.Chain, a, b *graph.Exe, graphTime float64, useCorrelation bool) {
	s := int(c.State)
	if c.Weight[s][s] == 0 {
		return
	}

	correlation := 1.0
	if useCorrelation {
		correlation = Correlation(graphTime, a.Time, b.Time, c.Time)
	}

	if c.State&graph.StateA == 0 {
		BidForExe(c, a, graph.StateA, correlation)
	}
	if c.State&graph.StateB == 0 {
		BidForExe(c, b, graph.StateB, correlation)
	}
}
