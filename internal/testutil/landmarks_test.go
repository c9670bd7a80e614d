package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/pose"
)

func TestStandingFrame(t *testing.T) {
	f := StandingFrame()
	require.Len(t, f, pose.NumLandmarks)

	left := pose.Distance3D(f[pose.LeftHip], f[pose.LeftAnkle])
	right := pose.Distance3D(f[pose.RightHip], f[pose.RightAnkle])
	assert.InDelta(t, 0.4, left, 1e-12)
	assert.InDelta(t, left, right, 1e-12)

	for _, w := range []pose.Landmark{pose.LeftWrist, pose.RightWrist} {
		assert.InDelta(t, 0.7, math.Hypot(f[w].X, f[w].Y), 1e-12)
	}
}

func TestStaticSequence(t *testing.T) {
	seq := StaticSequence(5)
	require.Len(t, seq, 5)
	assert.NoError(t, seq.Validate())
	assert.Equal(t, seq[0], seq[4])
}

func TestTremorSequence(t *testing.T) {
	seq := TremorSequence(8, 8, 2, 0.1)
	// Quarter period at 2 Hz sampled at 8 Hz: sin peaks on frame 1.
	r := math.Hypot(seq[1][pose.LeftWrist].X, seq[1][pose.LeftWrist].Y)
	assert.InDelta(t, 0.8, r, 1e-12)
}

func TestTruncate(t *testing.T) {
	seq := StaticSequence(3)
	short := Truncate(seq, 10)
	for _, f := range short {
		assert.Len(t, f, 10)
	}
	assert.Len(t, seq[0], pose.NumLandmarks, "input frames are not modified")
}
