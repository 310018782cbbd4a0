package traffic

import (
	"github.com/talgya/mini-city/internal/spatial"
)

// Class is a vehicle category.
type Class uint8

const (
	Car Class = iota
	Truck
	Bus
	Emergency
)

var classNames = [...]string{"car", "truck", "bus", "emergency"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// ParseClass maps "car", "truck", "bus" or "emergency" to a class.
func ParseClass(s string) (Class, bool) {
	for i, n := range classNames {
		if n == s {
			return Class(i), true
		}
	}
	return 0, false
}

// ClassSpec is the kinematic envelope of a vehicle class.
type ClassSpec struct {
	MaxSpeed     float64 `json:"max_speed"`
	Acceleration float64 `json:"acceleration"`
}

// Vehicle is a live vehicle on the network.
type Vehicle struct {
	ID       string         `json:"id"`
	Class    Class          `json:"class"`
	RoadID   string         `json:"road_id,omitempty"`
	Position spatial.Vec3   `json:"position"`
	Velocity spatial.Vec3   `json:"velocity"`
	Path     []spatial.Vec3 `json:"path"`
	Cursor   int            `json:"cursor"` // Index of the next waypoint

	Speed        float64 `json:"speed"`
	MaxSpeed     float64 `json:"max_speed"`
	Acceleration float64 `json:"acceleration"`

	Patience       float64 `json:"patience"`       // 0..100
	Aggressiveness float64 `json:"aggressiveness"` // 0..1
	Skill          float64 `json:"skill"`          // 0..1
	FollowDistance float64 `json:"follow_distance"`

	Lane         int  `json:"lane"`
	DesiredLane  int  `json:"desired_lane"`
	ChangingLane bool `json:"changing_lane"`
	Lanes        int  `json:"lanes"`

	StoppedTime  float64 `json:"stopped_time"`
	AccidentRisk float64 `json:"accident_risk"` // 0..100

	// Target is the accident an emergency vehicle is responding to.
	Target string `json:"target,omitempty"`
}

// Heading returns the unit direction toward the next waypoint.
func (v *Vehicle) Heading() spatial.Vec3 {
	if v.Cursor >= len(v.Path) {
		return v.Velocity.Normalize()
	}
	return v.Path[v.Cursor].Sub(v.Position).Normalize()
}

// Stopped reports whether the vehicle is effectively standing still.
func (v *Vehicle) Stopped() bool { return v.Speed < stoppedSpeed }

const stoppedSpeed = 0.5

// requestLaneChange starts a move to an adjacent lane if one exists.
// preferred < 0 means either neighbour.
func (v *Vehicle) requestLaneChange(preferred int) bool {
	if v.ChangingLane || v.Lanes < 2 {
		return false
	}
	target := preferred
	if target < 0 || target >= v.Lanes || target == v.Lane {
		if v.Lane+1 < v.Lanes {
			target = v.Lane + 1
		} else {
			target = v.Lane - 1
		}
	}
	v.DesiredLane = target
	v.ChangingLane = true
	return true
}

// ahead reports the along-path distance to p and its lateral offset.
func (v *Vehicle) ahead(p spatial.Vec3) (along, lateral float64) {
	h := v.Heading()
	rel := p.Sub(v.Position)
	along = rel.Dot(h)
	lateral = rel.Sub(h.Scale(along)).Len()
	return along, lateral
}

// advance moves the vehicle along its path and reports whether the path is exhausted.
func (v *Vehicle) advance(dt, tolerance float64) bool {
	step := v.Speed * dt
	for v.Cursor < len(v.Path) {
		wp := v.Path[v.Cursor]
		to := wp.Sub(v.Position)
		dist := to.Len()
		if dist <= tolerance || dist <= step {
			v.Position = wp
			v.Cursor++
			step -= dist
			if step <= 0 {
				break
			}
			continue
		}
		dir := to.Scale(1 / dist)
		v.Position = v.Position.Add(dir.Scale(step))
		v.Velocity = dir.Scale(v.Speed)
		return false
	}
	return v.Cursor >= len(v.Path)
}
