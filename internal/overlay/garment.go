package overlay

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/example/fitmirror/internal/pose"
)

// ErrUnsupportedGarment is returned for tags outside the five garment types.
var ErrUnsupportedGarment = errors.New("unsupported garment type")

// GarmentType is the closed set of overlay variants. The zero value is invalid.
type GarmentType int

const (
	Top GarmentType = iota + 1
	Bottom
	FullBody
	Shoes
	Accessories
)

// Fill colors are fixed per garment type; they stand in for the product and
// are not derived from its texture.
var (
	TopFill         = color.RGBA{R: 255, G: 200, B: 100, A: 255}
	BottomFill      = color.RGBA{R: 200, G: 100, B: 80, A: 255}
	ShoesFill       = color.RGBA{A: 255}
	AccessoriesFill = color.RGBA{R: 0, G: 215, B: 255, A: 255}
)

const (
	shoePadX         = 20
	shoePadBelow     = 40
	neckRadius       = 30
	wristRadius      = 15
	outlineThickness = 2
)

// garment owns the region rule of one variant.
type garment struct {
	tag     string
	regions func(lms pose.Landmarks, w, h int) []Region
}

var garments = map[GarmentType]garment{
	Top:         {tag: "top", regions: topRegions},
	Bottom:      {tag: "bottom", regions: bottomRegions},
	FullBody:    {tag: "full_body", regions: fullBodyRegions},
	Shoes:       {tag: "shoes", regions: shoeRegions},
	Accessories: {tag: "accessories", regions: accessoryRegions},
}

// GarmentTypes lists every variant in declaration order.
var GarmentTypes = []GarmentType{Top, Bottom, FullBody, Shoes, Accessories}

// ParseGarmentType accepts exactly the lower or upper snake case tag, e.g.
// "full_body" or "FULL_BODY". Anything else is ErrUnsupportedGarment.
func ParseGarmentType(tag string) (GarmentType, error) {
	for _, g := range GarmentTypes {
		if t := garments[g].tag; tag == t || tag == strings.ToUpper(t) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedGarment, tag)
}

// String returns the wire tag.
func (g GarmentType) String() string {
	if v, ok := garments[g]; ok {
		return v.tag
	}
	return fmt.Sprintf("garment(%d)", int(g))
}

// Valid reports whether g is one of the five variants.
func (g GarmentType) Valid() bool {
	_, ok := garments[g]
	return ok
}

// Regions computes the compositing steps for g, in application order.
func (g GarmentType) Regions(lms pose.Landmarks, w, h int) ([]Region, error) {
	v, ok := garments[g]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGarment, g)
	}
	if err := lms.Validate(); err != nil {
		return nil, err
	}
	return v.regions(lms, w, h), nil
}

// topRegions spans the shoulders horizontally and runs from the right
// shoulder down to the lower hip.
func topRegions(lms pose.Landmarks, w, h int) []Region {
	sl, sr := lms[pose.LeftShoulder], lms[pose.RightShoulder]
	hl, hr := lms[pose.LeftHip], lms[pose.RightHip]
	r := Rect{
		X1: int(min(sl.X, sr.X) * float64(w)),
		Y1: sr.PixelY(h),
		X2: int(max(sl.X, sr.X) * float64(w)),
		Y2: int(max(hl.Y, hr.Y) * float64(h)),
	}
	return []Region{{Shapes: []Shape{r}, Fill: TopFill, Paint: PaintBlend}}
}

// bottomRegions spans the hips horizontally and runs from the lower hip to
// the lower ankle.
func bottomRegions(lms pose.Landmarks, w, h int) []Region {
	hl, hr := lms[pose.LeftHip], lms[pose.RightHip]
	al, ar := lms[pose.LeftAnkle], lms[pose.RightAnkle]
	r := Rect{
		X1: int(min(hl.X, hr.X) * float64(w)),
		Y1: int(max(hl.Y, hr.Y) * float64(h)),
		X2: int(max(hl.X, hr.X) * float64(w)),
		Y2: int(max(al.Y, ar.Y) * float64(h)),
	}
	return []Region{{Shapes: []Shape{r}, Fill: BottomFill, Paint: PaintBlend}}
}

// fullBodyRegions is a top followed by a bottom, each blended on its own.
func fullBodyRegions(lms pose.Landmarks, w, h int) []Region {
	return append(topRegions(lms, w, h), bottomRegions(lms, w, h)...)
}

func shoeRegions(lms pose.Landmarks, w, h int) []Region {
	foot := func(ankle, tip pose.Landmark) Shape {
		return Rect{
			X1: ankle.PixelX(w) - shoePadX,
			Y1: ankle.PixelY(h),
			X2: tip.PixelX(w) + shoePadX,
			Y2: tip.PixelY(h) + shoePadBelow,
		}
	}
	return []Region{{
		Shapes: []Shape{
			foot(lms[pose.LeftAnkle], lms[pose.LeftFootTip]),
			foot(lms[pose.RightAnkle], lms[pose.RightFootTip]),
		},
		Fill:  ShoesFill,
		Paint: PaintOpaque,
	}}
}

// accessoryRegions outlines a necklace around the nose, used as a neck
// proxy, and a bracelet at each wrist.
func accessoryRegions(lms pose.Landmarks, w, h int) []Region {
	ring := func(lm pose.Landmark, radius int) Shape {
		return Ring{CX: lm.PixelX(w), CY: lm.PixelY(h), R: radius, Thickness: outlineThickness}
	}
	return []Region{{
		Shapes: []Shape{
			ring(lms[pose.Nose], neckRadius),
			ring(lms[pose.LeftWrist], wristRadius),
			ring(lms[pose.RightWrist], wristRadius),
		},
		Fill:  AccessoriesFill,
		Paint: PaintOutline,
	}}
}
