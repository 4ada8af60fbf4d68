package overlay

import (
	"math"

	"github.com/example/fitmirror/internal/pose"
	"github.com/example/fitmirror/internal/sizing"
)

// Variant is one rendered size in a comparison.
type Variant struct {
	Label sizing.Label
	Scale float64
	Frame *Frame
}

// ScaledRect is the comparison rectangle for a scale factor: centered on the
// shoulder midpoint, as wide as the shoulders and as tall as the
// right-shoulder-to-left-hip drop, both multiplied by scale.
func ScaledRect(lms pose.Landmarks, w, h int, scale float64) Rect {
	ls, rs, lh := lms[pose.LeftShoulder], lms[pose.RightShoulder], lms[pose.LeftHip]

	cx := int((ls.X + rs.X) / 2 * float64(w))
	cy := int((ls.Y + rs.Y) / 2 * float64(h))
	width := int(math.Abs(rs.X-ls.X) * float64(w) * scale)
	height := int(math.Abs(lh.Y-rs.Y) * float64(h) * scale)

	return Rect{
		X1: cx - width/2,
		Y1: cy - height/2,
		X2: cx + width/2,
		Y2: cy + height/2,
	}
}

// Compare renders one blended overlay per label, each on its own copy of
// base. base itself is never modified. Labels keep their request order.
func Compare(base *Frame, lms pose.Landmarks, labels []sizing.Label) ([]Variant, error) {
	if base == nil {
		return nil, ErrInvalidFrame
	}
	if err := lms.Validate(); err != nil {
		return nil, err
	}

	variants := make([]Variant, 0, len(labels))
	for _, label := range labels {
		scale := sizing.ScaleFactor(label)
		frame := base.Clone()
		region := Region{
			Shapes: []Shape{ScaledRect(lms, frame.Width(), frame.Height(), scale)},
			Fill:   TopFill,
			Paint:  PaintBlend,
		}
		region.Apply(frame)
		variants = append(variants, Variant{Label: label, Scale: scale, Frame: frame})
	}
	return variants, nil
}
