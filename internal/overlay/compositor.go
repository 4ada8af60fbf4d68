// Package overlay draws flat garment regions onto camera frames.
//
// Each garment type keeps its own paint behavior:
//
//	top, bottom, full_body  blended at 0.6 opacity
//	shoes                   opaque fill straight onto the frame
//	accessories             2 px outlines, no fill, no blending
//
// Regions are placeholders anchored to pose landmarks; no texture mapping is done.
package overlay

import (
	"github.com/example/fitmirror/internal/pose"
)

// Composite paints the garment onto frame in place. The garment type is
// checked before the landmarks, and nothing is drawn on error.
func Composite(frame *Frame, lms pose.Landmarks, g GarmentType) error {
	if frame == nil {
		return ErrInvalidFrame
	}
	regions, err := g.Regions(lms, frame.Width(), frame.Height())
	if err != nil {
		return err
	}
	for _, r := range regions {
		r.Apply(frame)
	}
	return nil
}
