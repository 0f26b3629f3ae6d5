package ui

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// OverlayID uniquely identifies an overlay.
type OverlayID string

// Standard overlay IDs.
const (
	OverlayVelocity   OverlayID = "velocity"
	OverlayDensity    OverlayID = "density"
	OverlayPressure   OverlayID = "pressure"
	OverlayHUD        OverlayID = "hud"
	OverlayPerf       OverlayID = "perf"
	OverlayFieldStats OverlayID = "field_stats"
	OverlayTuning     OverlayID = "tuning"
)

// Overlay categories. Overlays in a category with Radio set are mutually
// exclusive.
const (
	CategoryField = "field"
	CategoryPanel = "panel"
)

// OverlayDescriptor defines an overlay that can be toggled.
type OverlayDescriptor struct {
	ID          OverlayID
	Name        string
	Description string
	Key         int32  // Keyboard key to toggle (0 = no key)
	KeyLabel    string // e.g. "V"
	Category    string
}

// OverlayGroup is one category of overlays in registration order.
type OverlayGroup struct {
	Category string
	Radio    bool // At most one member enabled
	Overlays []OverlayDescriptor
}

// defaultOverlays lists the built-in overlays. Field views share the
// preview slot in the corner of the window.
var defaultOverlays = []OverlayDescriptor{
	{OverlayVelocity, "Velocity", "Velocity field, RG mapped to color", rl.KeyV, "V", CategoryField},
	{OverlayDensity, "Density", "Dye field driving the distortion", rl.KeyC, "C", CategoryField},
	{OverlayPressure, "Pressure", "Pressure after the Jacobi solve", rl.KeyP, "P", CategoryField},
	{OverlayHUD, "HUD", "Step counter, formats and frame rate", rl.KeyH, "H", CategoryPanel},
	{OverlayPerf, "Pass Timing", "Average time per simulation pass", rl.KeyF, "F", CategoryPanel},
	{OverlayFieldStats, "Field Stats", "Velocity norm, divergence and dye mass", rl.KeyS, "S", CategoryPanel},
	{OverlayTuning, "Tuning", "Sliders for the solver tunables", rl.KeyT, "T", CategoryPanel},
}

// OverlayRegistry tracks which overlays are shown.
type OverlayRegistry struct {
	groups  []OverlayGroup
	where   map[OverlayID][2]int // group, member
	enabled map[OverlayID]bool
}

// NewOverlayRegistry creates a registry with default overlays. Only the
// HUD starts enabled.
func NewOverlayRegistry() *OverlayRegistry {
	reg := &OverlayRegistry{
		where:   make(map[OverlayID][2]int),
		enabled: make(map[OverlayID]bool),
	}
	reg.SetRadio(CategoryField)
	for _, desc := range defaultOverlays {
		reg.Register(desc)
	}
	reg.enabled[OverlayHUD] = true
	return reg
}

// group returns the index of category, creating it if needed.
func (r *OverlayRegistry) group(category string) int {
	for i, g := range r.groups {
		if g.Category == category {
			return i
		}
	}
	r.groups = append(r.groups, OverlayGroup{Category: category})
	return len(r.groups) - 1
}

// SetRadio makes category mutually exclusive.
func (r *OverlayRegistry) SetRadio(category string) {
	r.groups[r.group(category)].Radio = true
}

// Register adds a disabled overlay. Registering an existing ID is ignored.
func (r *OverlayRegistry) Register(desc OverlayDescriptor) {
	if _, dup := r.where[desc.ID]; dup {
		return
	}
	gi := r.group(desc.Category)
	r.groups[gi].Overlays = append(r.groups[gi].Overlays, desc)
	r.where[desc.ID] = [2]int{gi, len(r.groups[gi].Overlays) - 1}
}

// Toggle flips an overlay and returns its new state. Unknown IDs report
// false.
func (r *OverlayRegistry) Toggle(id OverlayID) bool {
	if _, ok := r.where[id]; !ok {
		return false
	}
	on := !r.enabled[id]
	r.SetEnabled(id, on)
	return on
}

// SetEnabled sets an overlay's state. Enabling a radio member disables the
// rest of its group.
func (r *OverlayRegistry) SetEnabled(id OverlayID, enabled bool) {
	at, ok := r.where[id]
	if !ok {
		return
	}
	if g := r.groups[at[0]]; enabled && g.Radio {
		for _, other := range g.Overlays {
			r.enabled[other.ID] = false
		}
	}
	r.enabled[id] = enabled
}

// IsEnabled returns whether an overlay is active.
func (r *OverlayRegistry) IsEnabled(id OverlayID) bool {
	return r.enabled[id]
}

// Get returns an overlay descriptor by ID.
func (r *OverlayRegistry) Get(id OverlayID) (OverlayDescriptor, bool) {
	at, ok := r.where[id]
	if !ok {
		return OverlayDescriptor{}, false
	}
	return r.groups[at[0]].Overlays[at[1]], true
}

// Groups returns the categories in the order they were first used.
func (r *OverlayRegistry) Groups() []OverlayGroup {
	return r.groups
}

// HandleKeyPress toggles the overlay bound to key. It returns the overlay,
// its new state and whether any overlay was bound.
func (r *OverlayRegistry) HandleKeyPress(key int32) (OverlayID, bool, bool) {
	if key == 0 {
		return "", false, false
	}
	for _, g := range r.groups {
		for _, desc := range g.Overlays {
			if desc.Key == key {
				return desc.ID, r.Toggle(desc.ID), true
			}
		}
	}
	return "", false, false
}

// PollKeys toggles every overlay whose key was pressed this frame.
func (r *OverlayRegistry) PollKeys() {
	for key := rl.GetKeyPressed(); key != 0; key = rl.GetKeyPressed() {
		r.HandleKeyPress(key)
	}
}

// ActiveField returns the enabled field view, if any.
func (r *OverlayRegistry) ActiveField() (OverlayID, bool) {
	for _, g := range r.groups {
		if g.Category != CategoryField {
			continue
		}
		for _, desc := range g.Overlays {
			if r.enabled[desc.ID] {
				return desc.ID, true
			}
		}
	}
	return "", false
}

// EnabledOverlays returns the enabled overlay IDs in display order.
func (r *OverlayRegistry) EnabledOverlays() []OverlayID {
	var result []OverlayID
	for _, g := range r.groups {
		for _, desc := range g.Overlays {
			if r.enabled[desc.ID] {
				result = append(result, desc.ID)
			}
		}
	}
	return result
}
