package image

import "fmt"

// Rotation is a clockwise quarter-turn applied to a page image.
type Rotation int

const (
	RotationNone Rotation = iota // As scanned
	Rotation90                   // 90° clockwise
	Rotation180                  // 180°
	Rotation270                  // 270° clockwise (90° counter-clockwise)
)

// Rotations lists the four cardinal rotations in evaluation order.
var Rotations = [...]Rotation{RotationNone, Rotation90, Rotation180, Rotation270}

// Degrees returns the clockwise angle in degrees.
func (r Rotation) Degrees() int {
	return int(r) * 90
}

// Valid reports whether r is one of the four cardinal rotations.
func (r Rotation) Valid() bool {
	return r >= RotationNone && r <= Rotation270
}

func (r Rotation) String() string {
	switch r {
	case RotationNone:
		return "none"
	case Rotation90:
		return "90cw"
	case Rotation180:
		return "180"
	case Rotation270:
		return "270cw"
	default:
		return fmt.Sprintf("Rotation(%d)", int(r))
	}
}
