package pose

import (
	"encoding/json"
	"fmt"
	"io"
)

// FrameRecord is one frame as delivered by the pose-extraction collaborator.
// Keypoints holds NumLandmarks [x, y, z] triples; a trailing visibility
// value, when present, is ignored.
type FrameRecord struct {
	FrameNumber int         `json:"frame_number"`
	Timestamp   float64     `json:"timestamp"`
	Keypoints   [][]float64 `json:"keypoints"`
	Confidence  float64     `json:"confidence"`
}

// SessionInput is the upload payload for a single recording.
type SessionInput struct {
	PatientID     string        `json:"patient_id"`
	VideoDuration float64       `json:"video_duration"`
	FrameCount    int           `json:"frame_count"`
	PoseFrames    []FrameRecord `json:"pose_frames"`
}

// DecodeSession reads a JSON session payload. Non-numeric coordinates and
// keypoints with fewer than three components are rejected.
func DecodeSession(r io.Reader) (*SessionInput, error) {
	var in SessionInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	for i, fr := range in.PoseFrames {
		for j, kp := range fr.Keypoints {
			if len(kp) < 3 {
				return nil, fmt.Errorf("frame %d keypoint %d: expected 3 coordinates, got %d", i, j, len(kp))
			}
		}
	}
	if in.FrameCount == 0 {
		in.FrameCount = len(in.PoseFrames)
	}
	return &in, nil
}

// Sequence converts the decoded frames into a landmark Sequence.
func (in *SessionInput) Sequence() Sequence {
	seq := make(Sequence, 0, len(in.PoseFrames))
	for _, fr := range in.PoseFrames {
		f := make(Frame, len(fr.Keypoints))
		for j, kp := range fr.Keypoints {
			f[j] = Point3D{X: kp[0], Y: kp[1], Z: kp[2]}
		}
		seq = append(seq, f)
	}
	return seq
}
