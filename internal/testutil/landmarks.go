package testutil

import (
	"math"

	"github.com/banshee-data/motion.report/internal/pose"
)

// StandingFrame returns a left/right symmetric upright pose. Both legs have
// a hip-to-ankle distance of 0.4 and both wrists sit at radius 0.7 from the
// image origin.
func StandingFrame() pose.Frame {
	f := make(pose.Frame, pose.NumLandmarks)
	for i := range f {
		// Face and hand points: a loose cluster around the head.
		f[i] = pose.Point3D{X: 0.5, Y: 0.2, Z: 0}
	}
	f[pose.LeftShoulder] = pose.Point3D{X: 0.42, Y: 0.3}
	f[pose.RightShoulder] = pose.Point3D{X: 0.58, Y: 0.3}
	f[pose.LeftElbow] = pose.Point3D{X: 0.40, Y: 0.42}
	f[pose.RightElbow] = pose.Point3D{X: 0.60, Y: 0.42}
	f[pose.LeftWrist] = wristAt(0.7, 0.6, 0.8)
	f[pose.RightWrist] = wristAt(0.7, 0.8, 0.6)
	f[pose.LeftHip] = pose.Point3D{X: 0.45, Y: 0.5}
	f[pose.RightHip] = pose.Point3D{X: 0.55, Y: 0.5}
	f[pose.LeftKnee] = pose.Point3D{X: 0.45, Y: 0.7}
	f[pose.RightKnee] = pose.Point3D{X: 0.55, Y: 0.7}
	f[pose.LeftAnkle] = pose.Point3D{X: 0.45, Y: 0.9}
	f[pose.RightAnkle] = pose.Point3D{X: 0.55, Y: 0.9}
	f[pose.LeftHeel] = pose.Point3D{X: 0.44, Y: 0.92}
	f[pose.RightHeel] = pose.Point3D{X: 0.56, Y: 0.92}
	f[pose.LeftFootIndex] = pose.Point3D{X: 0.47, Y: 0.95}
	f[pose.RightFootIndex] = pose.Point3D{X: 0.53, Y: 0.95}
	return f
}

// StaticSequence repeats StandingFrame n times: zero displacement everywhere.
func StaticSequence(n int) pose.Sequence {
	seq := make(pose.Sequence, n)
	for i := range seq {
		seq[i] = StandingFrame()
	}
	return seq
}

// WalkingSequence moves the left ankle vertically as
// y = 0.8 - 0.05*cos(2*pi*cycleHz*t), so its height peaks exactly at frames
// sampleRate/(2*cycleHz) + k*sampleRate/cycleHz. The ankle advances 0.1
// normalized units per second along x, so one cycle covers 0.1/cycleHz.
func WalkingSequence(n int, sampleRate, cycleHz float64) pose.Sequence {
	seq := make(pose.Sequence, n)
	for i := range seq {
		t := float64(i) / sampleRate
		f := StandingFrame()
		f[pose.LeftAnkle] = pose.Point3D{
			X: 0.3 + 0.1*t,
			Y: 0.8 - 0.05*math.Cos(2*math.Pi*cycleHz*t),
		}
		seq[i] = f
	}
	return seq
}

// TremorSequence oscillates both wrists radially, so the planar magnitude
// sqrt(x^2+y^2) is exactly 0.7 + amplitude*sin(2*pi*hz*t).
func TremorSequence(n int, sampleRate, hz, amplitude float64) pose.Sequence {
	seq := make(pose.Sequence, n)
	for i := range seq {
		t := float64(i) / sampleRate
		r := 0.7 + amplitude*math.Sin(2*math.Pi*hz*t)
		f := StandingFrame()
		f[pose.LeftWrist] = wristAt(r, 0.6, 0.8)
		f[pose.RightWrist] = wristAt(r, 0.8, 0.6)
		seq[i] = f
	}
	return seq
}

// Truncate returns a copy of seq in which every frame only keeps its first
// keep landmarks, producing malformed frames.
func Truncate(seq pose.Sequence, keep int) pose.Sequence {
	out := make(pose.Sequence, len(seq))
	for i, f := range seq {
		if keep < len(f) {
			f = f[:keep]
		}
		out[i] = f
	}
	return out
}

func wristAt(r, cos, sin float64) pose.Point3D {
	return pose.Point3D{X: r * cos, Y: r * sin}
}
