package usecase

import (
	"context"
	"errors"

	"github.com/example/fitmirror/internal/codec"
	"github.com/example/fitmirror/internal/measurement"
	"github.com/example/fitmirror/internal/overlay"
	"github.com/example/fitmirror/internal/pose"
)

var (
	// ErrProductLookup wraps catalog misses and catalog failures.
	ErrProductLookup = errors.New("product lookup failure")
	// ErrResultPending is returned while a request is still being processed.
	ErrResultPending = errors.New("result still processing")
	// ErrNoSizes is returned for comparisons without any size label.
	ErrNoSizes = errors.New("at least one size label is required")
)

// Error kinds reported to callers and recorded as metric outcomes.
const (
	KindOK                 = "ok"
	KindDecodeFailure      = "decode_failure"
	KindPoseNotDetected    = "pose_not_detected"
	KindMissingLandmarks   = "missing_landmarks"
	KindUnsupportedGarment = "unsupported_garment"
	KindProductLookup      = "product_lookup_failure"
	KindInvalidRequest     = "invalid_request"
	KindPending            = "pending"
	KindDeadline           = "deadline_exceeded"
	KindInternal           = "internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, codec.ErrDecodeFailure), errors.Is(err, overlay.ErrInvalidFrame), errors.Is(err, measurement.ErrInvalidFrame):
		return KindDecodeFailure
	case errors.Is(err, pose.ErrPoseNotDetected):
		return KindPoseNotDetected
	case errors.Is(err, pose.ErrMissingLandmarks), errors.Is(err, pose.ErrInvalidLandmarkCount):
		return KindMissingLandmarks
	case errors.Is(err, overlay.ErrUnsupportedGarment):
		return KindUnsupportedGarment
	case errors.Is(err, ErrProductLookup):
		return KindProductLookup
	case errors.Is(err, ErrNoSizes):
		return KindInvalidRequest
	case errors.Is(err, ErrResultPending):
		return KindPending
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadline
	default:
		return KindInternal
	}
}
