package nav

import "math"

// Pos is a continuous position on the tile plane. +X is east, +Y is south.
type Pos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Dist2(a, b Pos) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

func Dist(a, b Pos) float64 { return math.Sqrt(Dist2(a, b)) }

// Octant is one of the 8 discrete compass facings, clockwise from north.
type Octant uint8

const (
	North Octant = iota
	Northeast
	East
	Southeast
	South
	Southwest
	West
	Northwest
)

var octantNames = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

func (o Octant) String() string { return octantNames[o%8] }

var octantDeltas = [8][2]float64{
	{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// Delta returns the unnormalized step direction of the octant.
func (o Octant) Delta() (dx, dy float64) {
	d := octantDeltas[o%8]
	return d[0], d[1]
}

// StepsBetween is the circular distance between two octants (0..4).
func StepsBetween(a, b Octant) int {
	d := int(a%8) - int(b%8)
	if d < 0 {
		d = -d
	}
	if d > 4 {
		d = 8 - d
	}
	return d
}

// OctantToward picks the compass facing from `from` toward `to`.
//
// Cardinal directions are preferred; a diagonal is chosen only when the minor
// axis delta is at least band*major. Axis deltas within snapEps are treated as
// zero so the final approach to a target is pure-cardinal and does not
// oscillate across the axis.
func OctantToward(from, to Pos, band, snapEps float64) (Octant, bool) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	adx := math.Abs(dx)
	ady := math.Abs(dy)
	if adx <= snapEps {
		dx, adx = 0, 0
	}
	if ady <= snapEps {
		dy, ady = 0, 0
	}
	if adx == 0 && ady == 0 {
		return North, false
	}

	major, minor := adx, ady
	if ady > adx {
		major, minor = ady, adx
	}
	diagonal := minor > 0 && minor >= band*major

	switch {
	case diagonal && dx > 0 && dy < 0:
		return Northeast, true
	case diagonal && dx > 0 && dy > 0:
		return Southeast, true
	case diagonal && dx < 0 && dy > 0:
		return Southwest, true
	case diagonal && dx < 0 && dy < 0:
		return Northwest, true
	case adx >= ady && dx > 0:
		return East, true
	case adx >= ady && dx < 0:
		return West, true
	case dy > 0:
		return South, true
	default:
		return North, true
	}
}
