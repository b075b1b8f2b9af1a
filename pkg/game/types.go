// Package game holds the world-state primitives and the client capability
// surface shared by tasks, routes, and bot clients. It is a leaf package:
// everything above it (tasks, routes, executors, coordinators) depends on it,
// and it depends on nothing of ours.
package game

import "math"

// Position is a point in the game world. Orientation is carried for snapshot
// fidelity; route files normally omit it.
type Position struct {
	MapID int     `json:"mapId"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	O     float64 `json:"o,omitempty"`
}

// Distance returns the 3D euclidean distance between two positions. Positions
// on different maps are treated as infinitely far apart.
func Distance(a, b Position) float64 {
	if a.MapID != b.MapID {
		return math.Inf(1)
	}
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
