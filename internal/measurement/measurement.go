// Package measurement derives body measurements in pixel units from pose landmarks.
//
// No smoothing or outlier rejection is applied: a single noisy landmark moves
// the result directly. HeightPx is the head-to-right-ankle span, an
// approximation rather than a calibrated stature.
package measurement

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/fitmirror/internal/pose"
)

// ErrInvalidFrame is returned for non-positive frame dimensions.
var ErrInvalidFrame = errors.New("invalid frame dimensions")

// Set is the measurement result for one frame.
type Set struct {
	ShoulderWidthPx int            `json:"shoulder_width"`
	HipWidthPx      int            `json:"hip_width"`
	HeightPx        int            `json:"height"`
	FrameWidth      int            `json:"-"`
	FrameHeight     int            `json:"-"`
	Landmarks       pose.Landmarks `json:"-"`
}

// Extract computes shoulder width, hip width and height for a frame of w×h pixels.
func Extract(lms pose.Landmarks, w, h int) (Set, error) {
	if err := lms.Validate(); err != nil {
		return Set{}, err
	}
	if w <= 0 || h <= 0 {
		return Set{}, fmt.Errorf("%w: %dx%d", ErrInvalidFrame, w, h)
	}

	return Set{
		ShoulderWidthPx: span(lms[pose.LeftShoulder].X, lms[pose.RightShoulder].X, w),
		HipWidthPx:      span(lms[pose.LeftHip].X, lms[pose.RightHip].X, w),
		HeightPx:        span(lms[pose.Nose].Y, lms[pose.RightAnkle].Y, h),
		FrameWidth:      w,
		FrameHeight:     h,
		Landmarks:       lms,
	}, nil
}

// AverageWidth is the aggregate width used for pixel-band sizing.
func (s Set) AverageWidth() float64 {
	return float64(s.ShoulderWidthPx+s.HipWidthPx) / 2
}

// NormalizedShoulderWidth is the shoulder span as a fraction of frame width.
func (s Set) NormalizedShoulderWidth() float64 {
	if len(s.Landmarks) != pose.NumLandmarks {
		return 0
	}
	return math.Abs(s.Landmarks[pose.RightShoulder].X - s.Landmarks[pose.LeftShoulder].X)
}

// NormalizedHipWidth is the hip span as a fraction of frame width.
func (s Set) NormalizedHipWidth() float64 {
	if len(s.Landmarks) != pose.NumLandmarks {
		return 0
	}
	return math.Abs(s.Landmarks[pose.RightHip].X - s.Landmarks[pose.LeftHip].X)
}

func span(a, b float64, scale int) int {
	pa := int(math.Round(a * float64(scale)))
	pb := int(math.Round(b * float64(scale)))
	if pa > pb {
		return pa - pb
	}
	return pb - pa
}
