// Package uistate holds per-session view state that is not persisted.
package uistate

import "github.com/rpggio/lanes/internal/live"

// State is the view state of one signed-in session.
type State struct {
	drawer *live.Value[bool]
}

// New creates a state with the drawer closed.
func New(queue *live.Queue) *State {
	return &State{drawer: live.NewValue(queue, false)}
}

// DrawerOpen reports whether the navigation drawer is open.
func (s *State) DrawerOpen() bool {
	return s.drawer.Get()
}

// ToggleDrawer flips the drawer and returns the new value.
func (s *State) ToggleDrawer() bool {
	open := !s.drawer.Get()
	s.drawer.Set(open)
	return open
}

// SetDrawer opens or closes the drawer.
func (s *State) SetDrawer(open bool) {
	if s.drawer.Get() != open {
		s.drawer.Set(open)
	}
}

// ObserveDrawer delivers the drawer state now and on every change.
func (s *State) ObserveDrawer(onNext func(bool)) *live.Subscription {
	return s.drawer.Subscribe(onNext)
}

// Reset returns every field to its initial value.
func (s *State) Reset() {
	s.SetDrawer(false)
}
