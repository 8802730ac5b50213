// Package scratch implements the scratch-to-reveal gesture surface: it turns a
// stream of pointer events into a stroke path used as a reveal mask and fires a
// single "revealed" notification once enough of the card has been scratched
// and the pointer is lifted.
//
// Coverage is estimated as swept stroke length times brush width. Overlapping
// strokes are counted again, so back-and-forth scratching over one spot
// overestimates the revealed area. That is the intended behaviour.
//
// A Surface is not safe for concurrent use. The gesture source owns it and
// delivers Start, Update* and Finalize in order from a single goroutine;
// renderers read snapshots through Path from that same goroutine.
package scratch

// ============================================================
// Defaults
// ============================================================

const (
	// StrokeWidth is the reveal brush width in surface-local units.
	StrokeWidth = 30.0
	// Threshold is the coverage ratio at which the card counts as revealed.
	Threshold = 0.4
	// NoiseDistance rejects moves of this length or shorter.
	NoiseDistance = 2.0
	// ViewportScale is the surface side relative to the viewport width.
	ViewportScale = 0.8
)

// SideForViewport returns the side of the square surface for a viewport width.
func SideForViewport(viewportWidth float64) float64 {
	return viewportWidth * ViewportScale
}

// ============================================================
// State machine
// ============================================================

type State int

const (
	StateIdle State = iota
	StateTracking
	StateThresholdReached
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateThresholdReached:
		return "threshold_reached"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// ImageRef identifies the content revealed under the overlay.
type ImageRef struct {
	PositionID string
	URL        string
}

// Option tunes a Surface.
type Option func(*Surface)

func WithStrokeWidth(w float64) Option {
	return func(s *Surface) {
		if w > 0 {
			s.strokeWidth = w
		}
	}
}

func WithThreshold(t float64) Option {
	return func(s *Surface) {
		if t > 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// ============================================================
// Surface
// ============================================================

type Surface struct {
	image      ImageRef
	side       float64
	onRevealed func()

	strokeWidth float64
	threshold   float64

	path     Path
	pointer  Point
	coverage float64
	state    State
}

// NewSurface creates the state for one displayed position. side is fixed for
// the life of the surface; onRevealed may be nil.
func NewSurface(image ImageRef, side float64, onRevealed func(), opts ...Option) *Surface {
	s := &Surface{
		image:       image,
		side:        side,
		onRevealed:  onRevealed,
		strokeWidth: StrokeWidth,
		threshold:   Threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins a new subpath at p.
func (s *Surface) Start(p Point) {
	if !p.Finite() {
		return
	}
	s.pointer = p
	s.path.MoveTo(p)
	if s.state == StateIdle {
		s.state = StateTracking
	}
}

// Update extends the current subpath to p and accumulates coverage. It
// reports whether the move was accepted.
func (s *Surface) Update(p Point) bool {
	// Update before any Start violates the gesture source contract.
	if s.state == StateIdle || !p.Finite() {
		return false
	}

	d := s.pointer.Distance(p)
	if d <= NoiseDistance {
		return false
	}

	s.path.LineTo(p)
	s.pointer = p
	s.coverage += d * s.strokeWidth

	if s.state == StateTracking && s.Ratio() >= s.threshold {
		s.state = StateThresholdReached
	}
	return true
}

// Finalize handles pointer release. It fires onRevealed the first time it is
// called after the threshold was reached and reports whether it did.
func (s *Surface) Finalize() bool {
	if s.state != StateThresholdReached {
		return false
	}
	s.state = StateCompleted
	if s.onRevealed != nil {
		s.onRevealed()
	}
	return true
}

// ============================================================
// Snapshots
// ============================================================

func (s *Surface) Image() ImageRef { return s.image }

func (s *Surface) Side() float64 { return s.side }

func (s *Surface) StrokeWidth() float64 { return s.strokeWidth }

func (s *Surface) State() State { return s.state }

func (s *Surface) Coverage() float64 { return s.coverage }

func (s *Surface) Pointer() Point { return s.pointer }

// Ratio is the estimated revealed fraction, clamped to 1.
func (s *Surface) Ratio() float64 {
	area := s.side * s.side
	if area <= 0 {
		return 1
	}
	r := s.coverage / area
	if r > 1 {
		return 1
	}
	return r
}

func (s *Surface) ThresholdReached() bool {
	return s.state >= StateThresholdReached
}

func (s *Surface) Revealed() bool {
	return s.state == StateCompleted
}

// Path returns a copy of the stroke path.
func (s *Surface) Path() Path {
	return s.path.Clone()
}
