package sizing

import (
	"fmt"

	"github.com/example/fitmirror/internal/measurement"
)

// Classifier turns a measurement set into a size and a confidence.
// Confidences are fixed lookup values, not model outputs.
type Classifier interface {
	Name() string
	Classify(m measurement.Set) (Label, float64)
}

// band is a half-open interval [previous upper, upper). The last band of a
// table is unbounded.
type band struct {
	upper      float64
	label      Label
	confidence float64
}

func lookup(bands []band, fallback band, value float64) (Label, float64) {
	for _, b := range bands {
		if value < b.upper {
			return b.label, b.confidence
		}
	}
	return fallback.label, fallback.confidence
}

var pixelBands = []band{
	{150, XS, 0.95},
	{180, S, 0.92},
	{210, M, 0.90},
	{240, L, 0.88},
	{270, XL, 0.85},
}

var pixelOverflow = band{label: XXL, confidence: 0.82}

// PixelBandClassifier sizes by the mean of shoulder and hip width in pixels.
type PixelBandClassifier struct{}

// Name implements Classifier.
func (PixelBandClassifier) Name() string { return "pixel_band" }

// Classify implements Classifier.
func (c PixelBandClassifier) Classify(m measurement.Set) (Label, float64) {
	return c.ClassifyWidth(m.AverageWidth())
}

// ClassifyWidth applies the pixel bands to an aggregate width.
func (PixelBandClassifier) ClassifyWidth(avgWidth float64) (Label, float64) {
	return lookup(pixelBands, pixelOverflow, avgWidth)
}

// NormalizedConfidence is reported for every normalized-band result.
const NormalizedConfidence = 0.85

var normalizedBands = []band{
	{0.25, XS, NormalizedConfidence},
	{0.30, S, NormalizedConfidence},
	{0.35, M, NormalizedConfidence},
	{0.40, L, NormalizedConfidence},
	{0.45, XL, NormalizedConfidence},
}

var normalizedOverflow = band{label: XXL, confidence: NormalizedConfidence}

// NormalizedBandClassifier sizes by shoulder width as a fraction of frame
// width. It does not agree with PixelBandClassifier for the same body.
type NormalizedBandClassifier struct{}

// Name implements Classifier.
func (NormalizedBandClassifier) Name() string { return "normalized_band" }

// Classify implements Classifier.
func (c NormalizedBandClassifier) Classify(m measurement.Set) (Label, float64) {
	return c.ClassifyFraction(m.NormalizedShoulderWidth())
}

// ClassifyFraction applies the normalized bands to a shoulder fraction.
func (NormalizedBandClassifier) ClassifyFraction(fraction float64) (Label, float64) {
	return lookup(normalizedBands, normalizedOverflow, fraction)
}

// ClassifierByName resolves a configured strategy name.
func ClassifierByName(name string) (Classifier, error) {
	switch name {
	case "", "pixel", "pixel_band":
		return PixelBandClassifier{}, nil
	case "normalized", "normalized_band":
		return NormalizedBandClassifier{}, nil
	default:
		return nil, fmt.Errorf("unknown size classifier %q", name)
	}
}
