package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDragClampsToViewport(t *testing.T) {
	at := time.Now()
	viewport := Size{Width: 800, Height: 600}

	s := UIState{}.DragStart(Point{X: 110, Y: 110}, Point{X: 100, Y: 100}, at)
	s = s.DragMove(Point{X: 310, Y: 210}, viewport)
	assert.Equal(t, Point{X: 300, Y: 200}, s.Position)

	s = s.DragMove(Point{X: 5000, Y: -40}, viewport)
	assert.Equal(t, Point{X: 800 - ButtonSize, Y: 0}, s.Position)

	s = s.DragEnd()
	moved := s.DragMove(Point{X: 0, Y: 0}, viewport)
	assert.Equal(t, s.Position, moved.Position)
}

func TestClickTogglesOnlyForShortPress(t *testing.T) {
	at := time.Now()
	s := UIState{}.DragStart(Point{X: 10, Y: 10}, Point{}, at)

	assert.False(t, s.Click(at.Add(50*time.Millisecond)).Open, "still dragging")

	s = s.DragEnd()
	assert.True(t, s.Click(at.Add(150*time.Millisecond)).Open)
	assert.False(t, s.Click(at.Add(ClickThreshold)).Open)
}

func TestToggleMinimized(t *testing.T) {
	s := UIState{Open: true}
	s = s.ToggleMinimized()
	assert.True(t, s.Minimized)
	assert.True(t, s.Open)
	assert.False(t, s.ToggleMinimized().Minimized)
}
