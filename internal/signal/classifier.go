package signal

import (
	"main/internal/feature"
)

// ThresholdClassifier is the bootstrap classifier used until a trained
// model is plugged in: it reads direction straight off the order-book
// imbalance. Probability is 0.5 plus half the imbalance once the imbalance
// clears the threshold, 0.5 (no opinion) otherwise.
type ThresholdClassifier struct {
	OBIThreshold float64

	samples int
}

// NewThresholdClassifier creates the bootstrap classifier.
func NewThresholdClassifier(obiThreshold float64) *ThresholdClassifier {
	if obiThreshold <= 0 {
		obiThreshold = 0.15
	}
	return &ThresholdClassifier{OBIThreshold: obiThreshold}
}

// Predict maps the imbalance into an upward-move probability.
func (c *ThresholdClassifier) Predict(snap feature.Snapshot) (float64, error) {
	obi := snap.OBI
	if obi > c.OBIThreshold || obi < -c.OBIThreshold {
		return 0.5 + obi/2, nil
	}
	return 0.5, nil
}

// Update counts samples; the threshold rule itself does not learn.
func (c *ThresholdClassifier) Update(feature.Snapshot, Outcome) {
	c.samples++
}

// Samples reports how many labeled outcomes have been observed.
func (c *ThresholdClassifier) Samples() int {
	return c.samples
}
