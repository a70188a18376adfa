package element

import (
	"github.com/nerrad567/tapflow-core/internal/device"
	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Strategy identifies which matching tier resolved an element.
type Strategy string

// Matching strategies, in tier order.
const (
	// StrategyExactBounds means the live element sits exactly where it
	// was recorded (within epsilon). Drift is zero by definition.
	StrategyExactBounds Strategy = "exact_bounds"

	// StrategyResourceID matched on the element's resource identifier.
	StrategyResourceID Strategy = "resource_id"

	// StrategyText matched on the element's visible text.
	StrategyText Strategy = "text"

	// StrategyContentDesc matched on the accessibility description.
	StrategyContentDesc Strategy = "content_desc"

	// StrategyNearestNeighbour matched the nearest element of the same
	// class within the maximum drift radius.
	StrategyNearestNeighbour Strategy = "nearest_neighbour"

	// StrategyNone means no tier produced a match.
	StrategyNone Strategy = ""
)

// Default matching parameters.
const (
	// DefaultBoundsEpsilon is the per-coordinate tolerance for an exact
	// bounds match, in pixels. Rendering differences of a pixel or two
	// must not defeat the fast path.
	DefaultBoundsEpsilon = 2

	// DefaultMaxDriftRadius is how far (pixels, centre to centre) the
	// nearest-neighbour tier will reach before giving up.
	DefaultMaxDriftRadius = 300.0
)

// Options tune the matching tiers.
type Options struct {
	// BoundsEpsilon is the per-coordinate tolerance for exact bounds
	// matching. Zero means DefaultBoundsEpsilon.
	BoundsEpsilon int

	// MaxDriftRadius bounds the nearest-neighbour search. Zero means
	// DefaultMaxDriftRadius.
	MaxDriftRadius float64
}

func (o Options) epsilon() int {
	if o.BoundsEpsilon <= 0 {
		return DefaultBoundsEpsilon
	}
	return o.BoundsEpsilon
}

func (o Options) maxDrift() float64 {
	if o.MaxDriftRadius <= 0 {
		return DefaultMaxDriftRadius
	}
	return o.MaxDriftRadius
}

// Match is the outcome of a find: the resolved live element (nil when
// nothing matched), the strategy that produced it, and the drift
// distance between the recorded and live centre points.
type Match struct {
	Matched       *device.Element
	Strategy      Strategy
	DriftDistance float64
}

// Found reports whether any tier resolved an element.
func (m Match) Found() bool {
	return m.Matched != nil
}

// Finder resolves recorded element descriptors against a live element
// tree using tiered fallback matching. It has no side effects: drift
// repair is the caller's decision based on the returned match.
type Finder struct {
	opts Options
}

// NewFinder creates a Finder with the given options.
func NewFinder(opts Options) *Finder {
	return &Finder{opts: opts}
}

// Find resolves target against the current elements.
//
// Tiers are tried in order; the first tier producing exactly one
// candidate wins. A tier with multiple candidates is ambiguous and is
// skipped rather than guessed at:
//
//  1. Exact bounds (within epsilon), drift is zero
//  2. resource_id exact match
//  3. text exact match
//  4. content_desc exact match
//  5. Nearest element of the same class within the max drift radius
//
// Parameters:
//   - current: Live elements from the latest snapshot
//   - target: The recorded descriptor to resolve
//
// Returns:
//   - Match: Matched element (nil if none), strategy, and drift distance
func (f *Finder) Find(current []device.Element, target flow.ElementDescriptor) Match {
	if len(current) == 0 {
		return Match{Strategy: StrategyNone}
	}

	if m := f.matchExactBounds(current, target); m.Found() {
		return m
	}
	if m := matchUniqueField(current, target, StrategyResourceID); m.Found() {
		return m
	}
	if m := matchUniqueField(current, target, StrategyText); m.Found() {
		return m
	}
	if m := matchUniqueField(current, target, StrategyContentDesc); m.Found() {
		return m
	}
	if m := f.matchNearestNeighbour(current, target); m.Found() {
		return m
	}

	return Match{Strategy: StrategyNone}
}

// matchExactBounds finds an element whose rectangle equals the recorded
// bounds within epsilon on every coordinate.
func (f *Finder) matchExactBounds(current []device.Element, target flow.ElementDescriptor) Match {
	if target.Bounds.IsZero() {
		return Match{Strategy: StrategyNone}
	}

	eps := f.opts.epsilon()
	for i := range current {
		if boundsEqual(current[i].Bounds, target.Bounds, eps) {
			return Match{
				Matched:       &current[i],
				Strategy:      StrategyExactBounds,
				DriftDistance: 0,
			}
		}
	}
	return Match{Strategy: StrategyNone}
}

// matchUniqueField matches on a single identity field; ambiguous
// results (more than one candidate) fall through to the next tier.
func matchUniqueField(current []device.Element, target flow.ElementDescriptor, strategy Strategy) Match {
	want := fieldValue(target, strategy)
	if want == "" {
		return Match{Strategy: StrategyNone}
	}

	var found *device.Element
	for i := range current {
		if elementField(current[i], strategy) != want {
			continue
		}
		if found != nil {
			// Ambiguous: two live elements share this identity.
			return Match{Strategy: StrategyNone}
		}
		found = &current[i]
	}

	if found == nil {
		return Match{Strategy: StrategyNone}
	}
	return Match{
		Matched:       found,
		Strategy:      strategy,
		DriftDistance: target.Bounds.DistanceTo(found.Bounds),
	}
}

// matchNearestNeighbour picks the closest same-class element within the
// maximum drift radius.
func (f *Finder) matchNearestNeighbour(current []device.Element, target flow.ElementDescriptor) Match {
	if target.Class == "" || target.Bounds.IsZero() {
		return Match{Strategy: StrategyNone}
	}

	maxDrift := f.opts.maxDrift()
	var nearest *device.Element
	nearestDist := maxDrift

	for i := range current {
		if current[i].Class != target.Class {
			continue
		}
		dist := target.Bounds.DistanceTo(current[i].Bounds)
		if dist <= nearestDist {
			nearest = &current[i]
			nearestDist = dist
		}
	}

	if nearest == nil {
		return Match{Strategy: StrategyNone}
	}
	return Match{
		Matched:       nearest,
		Strategy:      StrategyNearestNeighbour,
		DriftDistance: nearestDist,
	}
}

func fieldValue(target flow.ElementDescriptor, strategy Strategy) string {
	switch strategy {
	case StrategyResourceID:
		return target.ResourceID
	case StrategyText:
		return target.Text
	case StrategyContentDesc:
		return target.ContentDesc
	default:
		return ""
	}
}

func elementField(el device.Element, strategy Strategy) string {
	switch strategy {
	case StrategyResourceID:
		return el.ResourceID
	case StrategyText:
		return el.Text
	case StrategyContentDesc:
		return el.ContentDesc
	default:
		return ""
	}
}

func boundsEqual(a, b flow.Bounds, eps int) bool {
	return abs(a.X-b.X) <= eps &&
		abs(a.Y-b.Y) <= eps &&
		abs(a.Width-b.Width) <= eps &&
		abs(a.Height-b.Height) <= eps
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
