// Package pose defines body landmarks and the detectors that produce them.
package pose

import (
	"errors"
	"fmt"
)

// Body landmark indices following the MediaPipe pose convention.
const (
	Nose          = 0
	LeftShoulder  = 11
	RightShoulder = 12
	LeftWrist     = 15
	RightWrist    = 16
	LeftHip       = 23
	RightHip      = 24
	LeftAnkle     = 27
	RightAnkle    = 28
	LeftFootTip   = 31
	RightFootTip  = 32
	NumLandmarks  = 33
)

var (
	// ErrMissingLandmarks is returned when a landmark sequence is nil or empty.
	ErrMissingLandmarks = errors.New("missing landmarks")
	// ErrInvalidLandmarkCount is returned for sequences that are not NumLandmarks long.
	ErrInvalidLandmarkCount = errors.New("invalid landmark count")
	// ErrPoseNotDetected is returned by detectors that found no body in the frame.
	ErrPoseNotDetected = errors.New("no pose detected")
)

// Landmark is a single normalized body joint. X and Y are fractions of the
// frame width and height.
type Landmark struct {
	Index      int     `json:"index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Landmarks is an ordered sequence where the position is the joint index.
type Landmarks []Landmark

// Validate checks that the sequence is present and has the expected cardinality.
func (l Landmarks) Validate() error {
	if len(l) == 0 {
		return ErrMissingLandmarks
	}
	if len(l) != NumLandmarks {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidLandmarkCount, len(l), NumLandmarks)
	}
	return nil
}

// PixelX truncates the landmark's x coordinate into pixel space.
func (lm Landmark) PixelX(width int) int {
	return int(lm.X * float64(width))
}

// PixelY truncates the landmark's y coordinate into pixel space.
func (lm Landmark) PixelY(height int) int {
	return int(lm.Y * float64(height))
}

// Blank returns a full-size sequence with indices set and all coordinates zero.
func Blank() Landmarks {
	lms := make(Landmarks, NumLandmarks)
	for i := range lms {
		lms[i].Index = i
	}
	return lms
}
