// Package posetest provides landmark fixtures and fake detectors for tests.
package posetest

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/example/fitmirror/internal/pose"
)

// Builder fills a blank landmark sequence joint by joint.
type Builder struct {
	lms pose.Landmarks
}

// New starts from pose.Blank.
func New() *Builder {
	return &Builder{lms: pose.Blank()}
}

// At sets the normalized position of one joint with full visibility.
func (b *Builder) At(index int, x, y float64) *Builder {
	b.lms[index].X = x
	b.lms[index].Y = y
	b.lms[index].Visibility = 1
	return b
}

// Build returns a copy of the sequence.
func (b *Builder) Build() pose.Landmarks {
	out := make(pose.Landmarks, len(b.lms))
	copy(out, b.lms)
	return out
}

// Standing is a front-facing pose that fits comfortably inside the frame.
func Standing() pose.Landmarks {
	return New().
		At(pose.Nose, 0.50, 0.15).
		At(pose.LeftShoulder, 0.30, 0.40).
		At(pose.RightShoulder, 0.60, 0.40).
		At(pose.LeftWrist, 0.20, 0.60).
		At(pose.RightWrist, 0.70, 0.60).
		At(pose.LeftHip, 0.32, 0.65).
		At(pose.RightHip, 0.58, 0.65).
		At(pose.LeftAnkle, 0.35, 0.85).
		At(pose.RightAnkle, 0.55, 0.86).
		At(pose.LeftFootTip, 0.33, 0.88).
		At(pose.RightFootTip, 0.57, 0.89).
		Build()
}

// Detector returns fixed landmarks and records how many calls overlapped.
type Detector struct {
	Landmarks pose.Landmarks
	Err       error
	// Hold, when set, blocks each call until it is closed.
	Hold chan struct{}

	calls     atomic.Int32
	active    atomic.Int32
	mu        sync.Mutex
	maxActive int32
}

// Detect implements pose.Detector.
func (d *Detector) Detect(ctx context.Context, _ image.Image) (pose.Landmarks, error) {
	d.calls.Add(1)
	n := d.active.Add(1)
	defer d.active.Add(-1)

	d.mu.Lock()
	if n > d.maxActive {
		d.maxActive = n
	}
	d.mu.Unlock()

	if d.Hold != nil {
		select {
		case <-d.Hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Landmarks, nil
}

// Calls returns the number of Detect invocations.
func (d *Detector) Calls() int { return int(d.calls.Load()) }

// MaxConcurrent returns the highest number of overlapping Detect calls seen.
func (d *Detector) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.maxActive)
}
