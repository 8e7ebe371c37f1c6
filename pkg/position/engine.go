// Package position computes gap-based sort keys for ordered siblings
// (a board's lists, a list's cards). New values are inserted between
// existing ones without renumbering the whole set; when two neighbors
// become numerically adjacent the full set is rebalanced first.
package position

// DefaultGap is the initial spacing between sibling positions.
const DefaultGap int64 = 1024

// Engine computes positions for siblings within one parent scope.
// The zero value is not usable; construct with NewEngine.
type Engine struct {
	gap int64
}

// NewEngine creates an engine with the given gap. Gaps below 2 fall back to
// DefaultGap: a gap of 1 leaves adjacent siblings with no room for a
// midpoint even right after a rebalance.
func NewEngine(gap int64) *Engine {
	if gap < 2 {
		gap = DefaultGap
	}
	return &Engine{gap: gap}
}

// Gap returns the configured spacing.
func (e *Engine) Gap() int64 {
	return e.gap
}

// Append returns the position for a new last sibling: greatest existing
// position plus the gap, or the gap itself for an empty scope.
func (e *Engine) Append(siblings []int64) int64 {
	if len(siblings) == 0 {
		return e.gap
	}
	max := siblings[0]
	for _, p := range siblings[1:] {
		if p > max {
			max = p
		}
	}
	return max + e.gap
}

// InsertAt returns the position for a new sibling at index, given the
// current sibling positions in sorted order. ok is false when the two
// bounding positions are adjacent and no distinct midpoint exists; the
// caller must Rebalance and retry.
func (e *Engine) InsertAt(siblings []int64, index int) (pos int64, ok bool) {
	if len(siblings) == 0 {
		return e.gap, true
	}
	if index <= 0 {
		return siblings[0] - e.gap, true
	}
	if index >= len(siblings) {
		return siblings[len(siblings)-1] + e.gap, true
	}
	prev := siblings[index-1]
	next := siblings[index]
	if next-prev <= 1 {
		// degenerate gap: midpoint would collide with a neighbor
		return 0, false
	}
	return prev + (next-prev)/2, true
}

// Rebalance returns fresh positions k*gap for k = 1..n, restoring full
// spacing while preserving the current order.
func (e *Engine) Rebalance(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i+1) * e.gap
	}
	return out
}

// Placement is the outcome of PlaceAt. When Rebalanced is non-nil the
// existing siblings must be rewritten to those positions (in their current
// order) in the same atomic write that inserts Position.
type Placement struct {
	Position   int64
	Rebalanced []int64
}

// PlaceAt computes the position for a new sibling at index, rebalancing the
// scope first when the requested midpoint has no room. After a rebalance
// every interior gap equals the configured gap, which NewEngine keeps at 2
// or more, so the retry always finds a distinct midpoint.
func (e *Engine) PlaceAt(siblings []int64, index int) Placement {
	if pos, ok := e.InsertAt(siblings, index); ok {
		return Placement{Position: pos}
	}
	fresh := e.Rebalance(len(siblings))
	pos, _ := e.InsertAt(fresh, index)
	return Placement{Position: pos, Rebalanced: fresh}
}
