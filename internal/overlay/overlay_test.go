package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fitmirror/internal/pose"
	"github.com/example/fitmirror/internal/pose/posetest"
	"github.com/example/fitmirror/internal/sizing"
)

var gray = color.RGBA{R: 50, G: 50, B: 50, A: 255}

func grayFrame(t *testing.T) *Frame {
	t.Helper()
	f, err := NewFrame(640, 480)
	require.NoError(t, err)
	f.Fill(gray)
	return f
}

func changedPixels(a, b *Frame) int {
	n := 0
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			if a.At(x, y) != b.At(x, y) {
				n++
			}
		}
	}
	return n
}

func TestParseGarmentType(t *testing.T) {
	tests := map[string]GarmentType{
		"top":         Top,
		"TOP":         Top,
		"bottom":      Bottom,
		"full_body":   FullBody,
		"FULL_BODY":   FullBody,
		"shoes":       Shoes,
		"ACCESSORIES": Accessories,
	}
	for tag, want := range tests {
		got, err := ParseGarmentType(tag)
		require.NoError(t, err, tag)
		assert.Equal(t, want, got, tag)
	}

	for _, tag := range []string{"", "clothing", "jewelry", "makeup", "FULL-BODY", "full-body", "Full_Body", "Accessories", " shoes "} {
		_, err := ParseGarmentType(tag)
		assert.ErrorIs(t, err, ErrUnsupportedGarment, tag)
	}
	assert.Equal(t, "full_body", FullBody.String())
	assert.False(t, GarmentType(0).Valid())
}

func TestCompositeTopBlends(t *testing.T) {
	f := grayFrame(t)
	require.NoError(t, Composite(f, posetest.Standing(), Top))

	// 0.6·(255,200,100) + 0.4·(50,50,50)
	want := color.RGBA{R: 173, G: 140, B: 80, A: 255}
	assert.Equal(t, want, f.At(200, 200))
	assert.Equal(t, want, f.At(192, 192))
	assert.Equal(t, want, f.At(384, 312))
	assert.Equal(t, gray, f.At(385, 312))
	assert.Equal(t, gray, f.At(200, 313))
	assert.Equal(t, gray, f.At(100, 100))
}

func TestCompositeBottomRegion(t *testing.T) {
	f := grayFrame(t)
	require.NoError(t, Composite(f, posetest.Standing(), Bottom))

	// hips span x 204..371, from y 312 down to the lower ankle at 412
	assert.NotEqual(t, gray, f.At(204, 312))
	assert.NotEqual(t, gray, f.At(371, 412))
	assert.Equal(t, gray, f.At(203, 350))
	assert.Equal(t, gray, f.At(300, 413))
	assert.Equal(t, gray, f.At(300, 311))
}

func TestFullBodyEqualsTopThenBottom(t *testing.T) {
	lms := posetest.Standing()

	sequential := grayFrame(t)
	require.NoError(t, Composite(sequential, lms, Top))
	require.NoError(t, Composite(sequential, lms, Bottom))

	full := grayFrame(t)
	require.NoError(t, Composite(full, lms, FullBody))

	assert.True(t, full.Equal(sequential))
}

func TestCompositeShoesAreOpaque(t *testing.T) {
	f := grayFrame(t)
	require.NoError(t, Composite(f, posetest.Standing(), Shoes))

	// left foot rectangle: x 204..231, y 408..462
	assert.Equal(t, ShoesFill, f.At(204, 408))
	assert.Equal(t, ShoesFill, f.At(231, 462))
	assert.Equal(t, ShoesFill, f.At(220, 430))
	assert.Equal(t, gray, f.At(203, 430))
	assert.Equal(t, gray, f.At(220, 463))

	// right foot rectangle: x 332..384, y 412..467
	assert.Equal(t, ShoesFill, f.At(332, 412))
	assert.Equal(t, ShoesFill, f.At(384, 467))
	assert.Equal(t, gray, f.At(300, 440))
}

func TestCompositeAccessoriesOutlineOnly(t *testing.T) {
	f := grayFrame(t)
	require.NoError(t, Composite(f, posetest.Standing(), Accessories))

	// necklace around the nose at (320, 72), radius 30
	assert.Equal(t, AccessoriesFill, f.At(350, 72))
	assert.Equal(t, AccessoriesFill, f.At(320, 42))
	assert.Equal(t, gray, f.At(320, 72))
	assert.Equal(t, gray, f.At(335, 72))
	assert.Equal(t, gray, f.At(355, 72))

	// bracelets at (128, 288) and (448, 288), radius 15
	assert.Equal(t, AccessoriesFill, f.At(143, 288))
	assert.Equal(t, AccessoriesFill, f.At(448, 303))
	assert.Equal(t, gray, f.At(128, 288))
}

func TestCompositeClipsToFrame(t *testing.T) {
	lms := posetest.New().
		At(pose.LeftAnkle, 0.99, 0.99).
		At(pose.RightAnkle, 0.01, 0.99).
		At(pose.LeftFootTip, 1.0, 1.0).
		At(pose.RightFootTip, 0.0, 1.0).
		Build()
	f := grayFrame(t)
	require.NoError(t, Composite(f, lms, Shoes))
	assert.Equal(t, ShoesFill, f.At(639, 479))
	assert.Equal(t, ShoesFill, f.At(0, 479))
}

func TestCompositeRejectsUnsupportedGarmentBeforeDrawing(t *testing.T) {
	f := grayFrame(t)
	before := f.Clone()

	err := Composite(f, nil, GarmentType(42))
	assert.ErrorIs(t, err, ErrUnsupportedGarment)
	assert.True(t, f.Equal(before))
}

func TestCompositeRejectsMissingLandmarks(t *testing.T) {
	for _, g := range GarmentTypes {
		f := grayFrame(t)
		err := Composite(f, pose.Landmarks{}, g)
		assert.ErrorIs(t, err, pose.ErrMissingLandmarks, g.String())
	}
	assert.ErrorIs(t, Composite(nil, posetest.Standing(), Top), ErrInvalidFrame)
}

func TestCompareProducesIndependentBuffers(t *testing.T) {
	base := grayFrame(t)
	original := base.Clone()
	labels := sizing.ParseLabels("S,M,L")

	variants, err := Compare(base, posetest.Standing(), labels)
	require.NoError(t, err)
	require.Len(t, variants, 3)
	assert.True(t, base.Equal(original), "base frame must stay untouched")

	snapshots := make([]*Frame, len(variants))
	for i, v := range variants {
		assert.Equal(t, labels[i], v.Label)
		snapshots[i] = v.Frame.Clone()
	}

	variants[0].Frame.Fill(color.RGBA{R: 255, A: 255})
	assert.True(t, variants[1].Frame.Equal(snapshots[1]))
	assert.True(t, variants[2].Frame.Equal(snapshots[2]))
	assert.True(t, base.Equal(original))
}

func TestCompareAreaGrowsWithSize(t *testing.T) {
	base := grayFrame(t)
	lms := posetest.Standing()

	variants, err := Compare(base, lms, sizing.Labels)
	require.NoError(t, err)
	require.Len(t, variants, len(sizing.Labels))

	prevArea, prevChanged := 0, 0
	for _, v := range variants {
		area := ScaledRect(lms, base.Width(), base.Height(), v.Scale).Area()
		changed := changedPixels(base, v.Frame)
		assert.Greater(t, area, prevArea, "label %s", v.Label)
		assert.Greater(t, changed, prevChanged, "label %s", v.Label)
		assert.Equal(t, area, changed, "label %s", v.Label)
		prevArea, prevChanged = area, changed
	}
}

func TestScaledRectAtMedium(t *testing.T) {
	r := ScaledRect(posetest.Standing(), 640, 480, 1.0)
	assert.Equal(t, Rect{X1: 192, Y1: 132, X2: 384, Y2: 252}, r)
	assert.Equal(t, image.Rect(192, 132, 385, 253), r.Bounds())
}

func TestCompareUnknownLabelUsesUnitScale(t *testing.T) {
	base := grayFrame(t)
	variants, err := Compare(base, posetest.Standing(), []sizing.Label{"XXXL", sizing.M})
	require.NoError(t, err)
	require.Len(t, variants, 2)
	assert.Equal(t, 1.0, variants[0].Scale)
	assert.True(t, variants[0].Frame.Equal(variants[1].Frame))
}

func TestCompareRejectsMissingLandmarks(t *testing.T) {
	_, err := Compare(grayFrame(t), nil, sizing.Labels)
	assert.ErrorIs(t, err, pose.ErrMissingLandmarks)
}

func TestFromImageCopiesPixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 14, 13))
	src.SetRGBA(11, 11, color.RGBA{R: 9, G: 8, B: 7, A: 255})

	f, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width())
	assert.Equal(t, 3, f.Height())
	assert.Equal(t, color.RGBA{R: 9, G: 8, B: 7, A: 255}, f.At(1, 1))

	_, err = FromImage(nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)
}
