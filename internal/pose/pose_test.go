package pose

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance3D(t *testing.T) {
	tests := []struct {
		name string
		a, b Point3D
		want float64
	}{
		{"same point", Point3D{1, 2, 3}, Point3D{1, 2, 3}, 0},
		{"unit x", Point3D{0, 0, 0}, Point3D{1, 0, 0}, 1},
		{"3-4-5", Point3D{0, 0, 0}, Point3D{3, 4, 0}, 5},
		{"all axes", Point3D{1, 1, 1}, Point3D{2, 3, 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance3D(tt.a, tt.b), 1e-12)
			assert.InDelta(t, tt.want, Distance3D(tt.b, tt.a), 1e-12)
		})
	}
}

func TestLandmarkIndices(t *testing.T) {
	// Analyzers depend on these positions.
	assert.Equal(t, 15, int(LeftWrist))
	assert.Equal(t, 16, int(RightWrist))
	assert.Equal(t, 23, int(LeftHip))
	assert.Equal(t, 24, int(RightHip))
	assert.Equal(t, 25, int(LeftKnee))
	assert.Equal(t, 26, int(RightKnee))
	assert.Equal(t, 27, int(LeftAnkle))
	assert.Equal(t, 28, int(RightAnkle))
	assert.Equal(t, 33, NumLandmarks)
	assert.Len(t, LandmarkNames(), NumLandmarks)
	assert.Equal(t, "left_ankle", LeftAnkle.String())
	assert.Equal(t, "landmark(40)", Landmark(40).String())
}

func TestFrameAt(t *testing.T) {
	f := make(Frame, NumLandmarks)
	f[LeftWrist] = Point3D{X: 0.4, Y: 0.5}

	p, ok := f.At(LeftWrist)
	require.True(t, ok)
	assert.Equal(t, 0.4, p.X)

	short := f[:20]
	_, ok = short.At(LeftAnkle)
	assert.False(t, ok)
	assert.True(t, short.Has(LeftWrist, RightWrist))
	assert.False(t, short.Has(LeftHip, LeftAnkle))
}

func TestSequenceValidate(t *testing.T) {
	seq := Sequence{make(Frame, NumLandmarks), make(Frame, 10)}
	assert.NoError(t, seq.Validate())

	seq[1][3].Y = math.NaN()
	err := seq.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonFiniteCoordinate))
	assert.Contains(t, err.Error(), "left_eye_outer")
}

func TestSequenceDuration(t *testing.T) {
	seq := make(Sequence, 45)
	assert.InDelta(t, 1.5, seq.Duration(30), 1e-9)
	assert.Equal(t, 0.0, seq.Duration(0))
}

func TestDecodeSession(t *testing.T) {
	payload := `{
		"patient_id": "p-1",
		"video_duration": 0.1,
		"pose_frames": [
			{"frame_number": 0, "timestamp": 0, "keypoints": [[0.1, 0.2, 0.3], [0.4, 0.5, 0.6, 0.99]], "confidence": 0.9},
			{"frame_number": 1, "timestamp": 0.033, "keypoints": [[0.1, 0.2, 0.3]], "confidence": 0.8}
		]
	}`
	in, err := DecodeSession(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "p-1", in.PatientID)
	assert.Equal(t, 2, in.FrameCount)

	seq := in.Sequence()
	require.Len(t, seq, 2)
	assert.Len(t, seq[0], 2)
	assert.Equal(t, Point3D{X: 0.4, Y: 0.5, Z: 0.6}, seq[0][1])

	t.Run("non-numeric coordinate", func(t *testing.T) {
		_, err := DecodeSession(strings.NewReader(`{"pose_frames":[{"keypoints":[["a",0,0]]}]}`))
		assert.Error(t, err)
	})

	t.Run("short keypoint", func(t *testing.T) {
		_, err := DecodeSession(strings.NewReader(`{"pose_frames":[{"keypoints":[[0.1,0.2]]}]}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected 3 coordinates")
	})
}
