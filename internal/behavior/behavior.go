// File: internal/behavior/behavior.go
//
// Package behavior produces the randomized, bounded timing and pointer
// movement parameters used to make scripted interactions look human. Fixed
// timings are a detectable automation fingerprint; every output here is
// drawn from a configured [min, max] range, and the random source is
// injectable so the distribution stays deterministic under test.
package behavior

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/xkilldash9x/ghostlogin/internal/config"
)

// ActionClass names a category of simulated human pause.
type ActionClass string

const (
	ClassNavigationSettle ActionClass = "navigation_settle"
	ClassPreClick         ActionClass = "pre_click"
	ClassPostEntry        ActionClass = "post_entry"
	ClassPostSubmit       ActionClass = "post_submit"
)

// Point is a 2D page coordinate used for pointer paths.
type Point struct {
	X, Y float64
}

// Dist returns the Euclidean distance to other.
func (p Point) Dist(other Point) float64 {
	return math.Hypot(p.X-other.X, p.Y-other.Y)
}

// Simulator samples delays and pointer paths from the configured ranges.
// It holds no state beyond the random source; the mutex makes it safe to
// share across goroutines, although a session normally owns one exclusively.
type Simulator struct {
	cfg config.BehaviorConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Simulator seeded from the wall clock.
func New(cfg config.BehaviorConfig) *Simulator {
	return NewWithRand(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand creates a Simulator with an injected random source, used by
// tests that need a deterministic distribution.
func NewWithRand(cfg config.BehaviorConfig, rng *rand.Rand) *Simulator {
	return &Simulator{cfg: cfg, rng: rng}
}

// Delay samples a pause for the named action class. The result always lies
// within the configured range for that class. Unknown classes fall back to
// the pre-click range, the narrowest configured interval.
func (s *Simulator) Delay(class ActionClass) time.Duration {
	var r config.DelayRange
	switch class {
	case ClassNavigationSettle:
		r = s.cfg.NavigationSettle
	case ClassPreClick:
		r = s.cfg.PreClick
	case ClassPostEntry:
		r = s.cfg.PostEntry
	case ClassPostSubmit:
		r = s.cfg.PostSubmit
	default:
		r = s.cfg.PreClick
	}
	return s.sample(r)
}

// KeystrokeDelay samples the pause between two simulated keystrokes.
func (s *Simulator) KeystrokeDelay() time.Duration {
	return s.sample(s.cfg.Typing)
}

// sample draws a duration uniformly from [r.Min, r.Max].
func (s *Simulator) sample(r config.DelayRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.Min + time.Duration(s.rng.Int63n(int64(r.Max-r.Min)+1))
}

// PointerPath builds a curved, slightly jittered path from one coordinate to
// another. The step count is drawn from the configured bounds, interpolation
// is eased (slow-fast-slow, the velocity profile of a real hand), and each
// intermediate point carries bounded jitter. The first point is exactly
// from; the last is exactly to.
func (s *Simulator) PointerPath(from, to Point) []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.cfg.PointerStepsMin
	if s.cfg.PointerStepsMax > s.cfg.PointerStepsMin {
		steps += s.rng.Intn(s.cfg.PointerStepsMax - s.cfg.PointerStepsMin + 1)
	}
	if steps < 2 {
		steps = 2
	}

	// A control point off the straight line gives the path a natural arc.
	mid := Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2}
	arc := from.Dist(to) * 0.15
	ctrl := Point{
		X: mid.X + (s.rng.Float64()-0.5)*2*arc,
		Y: mid.Y + (s.rng.Float64()-0.5)*2*arc,
	}

	path := make([]Point, steps)
	for i := 0; i < steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps-1))
		p := quadBezier(from, ctrl, to, t)
		if i > 0 && i < steps-1 && s.cfg.PointerJitterPx > 0 {
			p.X += (s.rng.Float64() - 0.5) * 2 * s.cfg.PointerJitterPx
			p.Y += (s.rng.Float64() - 0.5) * 2 * s.cfg.PointerJitterPx
		}
		path[i] = p
	}
	path[0] = from
	path[steps-1] = to
	return path
}

// RandomViewportPoint picks a pointer target inside the viewport, keeping a
// margin from the edges the way a real cursor idles mid-page.
func (s *Simulator) RandomViewportPoint(width, height int) Point {
	const margin = 100.0
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := float64(width), float64(height)
	if w <= 2*margin || h <= 2*margin {
		return Point{X: w / 2, Y: h / 2}
	}
	return Point{
		X: margin + s.rng.Float64()*(w-2*margin),
		Y: margin + s.rng.Float64()*(h-2*margin),
	}
}

// easeInOutCubic maps linear progress to an eased velocity profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := -2*t + 2
	return 1 - u*u*u/2
}

// quadBezier evaluates a quadratic Bezier curve at parameter t.
func quadBezier(p0, p1, p2 Point, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*p0.X + 2*u*t*p1.X + t*t*p2.X,
		Y: u*u*p0.Y + 2*u*t*p1.Y + t*t*p2.Y,
	}
}
