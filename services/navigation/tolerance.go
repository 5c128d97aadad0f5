package navigation

// Tolerances bound how close the robot must get to a waypoint before it counts as reached.
// Position applies to each axis independently.
type Tolerances struct {
	Position float64 `json:"tolerance"`
	Yaw      float64 `json:"yaw_tolerance"`
}

// Final is the tightened position tolerance used while approaching the last waypoint.
func (t Tolerances) Final() float64 {
	return t.Position / 2
}

// ToleranceSource supplies the tolerances to use for the next trajectory. It is consulted once
// per accepted trajectory so tolerances can be changed between runs.
type ToleranceSource interface {
	Tolerances() Tolerances
}

type staticTolerances Tolerances

func (t staticTolerances) Tolerances() Tolerances {
	return Tolerances(t)
}
