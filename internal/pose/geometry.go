package pose

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFiniteCoordinate is returned by Validate when a landmark carries a
// NaN or infinite coordinate.
var ErrNonFiniteCoordinate = errors.New("non-finite landmark coordinate")

// Point3D is a landmark position in normalized image coordinates.
// X and Y are roughly in [0,1]; Z is relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance3D returns the Euclidean distance between two points.
func Distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Frame is one instant of a session: NumLandmarks points in Landmark order.
type Frame []Point3D

// At returns the position of landmark l. ok is false when the frame is too
// short to contain l, which callers treat as a malformed frame and skip.
func (f Frame) At(l Landmark) (p Point3D, ok bool) {
	if l < 0 || int(l) >= len(f) {
		return Point3D{}, false
	}
	return f[l], true
}

// Has reports whether every listed landmark is present in the frame.
func (f Frame) Has(ls ...Landmark) bool {
	for _, l := range ls {
		if l < 0 || int(l) >= len(f) {
			return false
		}
	}
	return true
}

// Sequence is an ordered, immutable series of frames sampled at a fixed rate.
type Sequence []Frame

// Validate rejects coordinates that no downstream computation can use.
// Short or malformed frames are not errors; analyzers skip them.
func (s Sequence) Validate() error {
	for i, f := range s {
		for j, p := range f {
			if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
				return fmt.Errorf("frame %d landmark %s: %w", i, Landmark(j), ErrNonFiniteCoordinate)
			}
		}
	}
	return nil
}

// Duration returns the session length in seconds at the given sample rate.
func (s Sequence) Duration(sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(s)) * (1.0 / sampleRate)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
