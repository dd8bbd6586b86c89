package widget

import "time"

const (
	// ButtonSize is the edge length of the floating chat button.
	ButtonSize = 48.0
	// ClickThreshold is the longest press still treated as a click.
	ClickThreshold = 200 * time.Millisecond
)

type Point struct{ X, Y float64 }

type Size struct{ Width, Height float64 }

// UIState is the floating widget's presentation state. Every transition
// returns a new value.
type UIState struct {
	Open      bool
	Minimized bool
	Position  Point
	Dragging  bool

	grab      Point
	pressedAt time.Time
}

// DragStart begins a press at pointer on a button whose top-left corner is origin.
func (s UIState) DragStart(pointer, origin Point, at time.Time) UIState {
	s.Position = origin
	s.Dragging = true
	s.grab = Point{X: pointer.X - origin.X, Y: pointer.Y - origin.Y}
	s.pressedAt = at
	return s
}

// DragMove follows the pointer, keeping the button inside viewport.
func (s UIState) DragMove(pointer Point, viewport Size) UIState {
	if !s.Dragging {
		return s
	}
	s.Position = Point{
		X: clamp(pointer.X-s.grab.X, 0, viewport.Width-ButtonSize),
		Y: clamp(pointer.Y-s.grab.Y, 0, viewport.Height-ButtonSize),
	}
	return s
}

func (s UIState) DragEnd() UIState {
	s.Dragging = false
	return s
}

// Click toggles the chat panel unless a drag is in progress or the press
// lasted ClickThreshold or longer.
func (s UIState) Click(at time.Time) UIState {
	if s.Dragging {
		return s
	}
	if !s.pressedAt.IsZero() && at.Sub(s.pressedAt) >= ClickThreshold {
		return s
	}
	s.Open = !s.Open
	s.pressedAt = time.Time{}
	return s
}

func (s UIState) ToggleMinimized() UIState {
	s.Minimized = !s.Minimized
	return s
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
