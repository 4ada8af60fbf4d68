package pose

import (
	"context"
	"errors"
	"image"
)

// Detector produces a landmark sequence for a decoded frame. Implementations
// return ErrPoseNotDetected when the frame contains no body; they never
// return an empty sequence with a nil error.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) (Landmarks, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame image.Image) (Landmarks, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame image.Image) (Landmarks, error) {
	return f(ctx, frame)
}

// Serialized guards a single detector that is not safe for concurrent use.
// Callers waiting for the detector give up when their context is done.
type Serialized struct {
	sem      chan struct{}
	detector Detector
}

// NewSerialized wraps d so that at most one frame is processed at a time.
func NewSerialized(d Detector) *Serialized {
	return &Serialized{sem: make(chan struct{}, 1), detector: d}
}

// Detect runs the wrapped detector while holding the single slot.
func (s *Serialized) Detect(ctx context.Context, frame image.Image) (Landmarks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()
	return checked(s.detector.Detect(ctx, frame))
}

// checked normalizes detector output so that an empty result is always
// reported as ErrPoseNotDetected and a populated one has the right size.
func checked(lms Landmarks, err error) (Landmarks, error) {
	if err != nil {
		return nil, err
	}
	if vErr := lms.Validate(); vErr != nil {
		if errors.Is(vErr, ErrMissingLandmarks) {
			return nil, ErrPoseNotDetected
		}
		return nil, vErr
	}
	return lms, nil
}
