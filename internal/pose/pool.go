package pose

import (
	"context"
	"errors"
	"image"
)

// ErrEmptyPool is returned when a pool is built without detectors.
var ErrEmptyPool = errors.New("detector pool is empty")

// Pool hands out detector instances so that no instance ever processes two
// frames at once. Pool itself is safe for concurrent use.
type Pool struct {
	idle chan Detector
	size int
}

// NewPool builds a pool that owns the given detectors.
func NewPool(detectors ...Detector) (*Pool, error) {
	if len(detectors) == 0 {
		return nil, ErrEmptyPool
	}
	idle := make(chan Detector, len(detectors))
	for _, d := range detectors {
		idle <- d
	}
	return &Pool{idle: idle, size: len(detectors)}, nil
}

// Size returns the number of detectors owned by the pool.
func (p *Pool) Size() int { return p.size }

// Idle returns the number of detectors currently checked in.
func (p *Pool) Idle() int { return len(p.idle) }

// Acquire checks out a detector, blocking until one is free or ctx is done.
// The returned release func checks the detector back in; calls after the
// first are no-ops.
func (p *Pool) Acquire(ctx context.Context) (Detector, func(), error) {
	select {
	case d := <-p.idle:
		released := false
		return d, func() {
			if released {
				return
			}
			released = true
			p.idle <- d
		}, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Detect checks out a detector for the duration of one frame.
func (p *Pool) Detect(ctx context.Context, frame image.Image) (Landmarks, error) {
	d, release, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	return checked(d.Detect(ctx, frame))
}
