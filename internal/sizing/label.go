// Package sizing maps body measurements to garment size labels.
package sizing

import "strings"

// Label is a garment size. Known labels are totally ordered; anything else is
// carried through verbatim so that comparison requests can echo it back.
type Label string

const (
	XS  Label = "XS"
	S   Label = "S"
	M   Label = "M"
	L   Label = "L"
	XL  Label = "XL"
	XXL Label = "XXL"
)

// Labels lists every known size in ascending order.
var Labels = []Label{XS, S, M, L, XL, XXL}

var scaleFactors = map[Label]float64{
	XS:  0.85,
	S:   0.90,
	M:   1.00,
	L:   1.10,
	XL:  1.20,
	XXL: 1.30,
}

// Rank is the position of l in Labels, or -1 for unknown labels.
func (l Label) Rank() int {
	for i, known := range Labels {
		if known == l {
			return i
		}
	}
	return -1
}

// Known reports whether l is one of the six standard sizes.
func (l Label) Known() bool { return l.Rank() >= 0 }

// ScaleFactor returns the overlay multiplier for l; unknown labels scale by 1.
func ScaleFactor(l Label) float64 {
	if f, ok := scaleFactors[l]; ok {
		return f
	}
	return 1.0
}

// ParseLabels splits a comma separated list into an ordered set of labels.
// Entries are trimmed and upper-cased; blanks and repeats are dropped.
func ParseLabels(csv string) []Label {
	var out []Label
	seen := make(map[Label]struct{})
	for _, part := range strings.Split(csv, ",") {
		l := Label(strings.ToUpper(strings.TrimSpace(part)))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
