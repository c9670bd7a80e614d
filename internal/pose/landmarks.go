// Package pose defines the 33-point body landmark model consumed by the
// gait and tremor analyzers.
//
// Landmark ordering follows the BlazePose topology used by common
// pose-estimation runtimes. Analyzers address landmarks by name through the
// Landmark enum rather than by raw index, so the 33-point contract is explicit
// and independent of the estimator that produced the frames.
package pose

import "fmt"

// Landmark identifies one of the 33 body landmarks in a frame.
type Landmark int

const (
	Nose Landmark = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	// NumLandmarks is the number of points in a well-formed frame.
	NumLandmarks = 33
)

var landmarkNames = [NumLandmarks]string{
	"nose", "left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// String returns the snake_case landmark name.
func (l Landmark) String() string {
	if !l.Valid() {
		return fmt.Sprintf("landmark(%d)", int(l))
	}
	return landmarkNames[l]
}

// Valid reports whether l is inside the 33-point topology.
func (l Landmark) Valid() bool {
	return l >= 0 && l < NumLandmarks
}

// LandmarkNames returns the names of all landmarks in index order.
func LandmarkNames() []string {
	out := make([]string, NumLandmarks)
	copy(out, landmarkNames[:])
	return out
}
