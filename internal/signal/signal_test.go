package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"main/internal/feature"
)

type stubClassifier struct {
	p   float64
	err error

	updates int
}

func (c *stubClassifier) Predict(feature.Snapshot) (float64, error) { return c.p, c.err }
func (c *stubClassifier) Update(feature.Snapshot, Outcome)          { c.updates++ }

func breakoutUp(ts int64) feature.Snapshot {
	return feature.Snapshot{TsNano: ts, Mid: 13, ChannelHigh: 12, ChannelLow: 9, ChannelPosition: 1.3}
}

func breakoutDown(ts int64) feature.Snapshot {
	return feature.Snapshot{TsNano: ts, Mid: 8, ChannelHigh: 12, ChannelLow: 9, ChannelPosition: -0.3}
}

func insideChannel(ts int64) feature.Snapshot {
	return feature.Snapshot{TsNano: ts, Mid: 10, ChannelHigh: 12, ChannelLow: 9, ChannelPosition: 0.33}
}

func TestBuyRequiresBreakoutAndProbability(t *testing.T) {
	clf := &stubClassifier{p: 0.8}
	e := NewEngine(1, Config{Threshold: 0.65}, clf)

	got := e.Evaluate(breakoutUp(1))
	assert.Equal(t, Buy, got.Direction)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	// Breakout without classifier agreement stays neutral.
	clf.p = 0.6
	e = NewEngine(1, Config{Threshold: 0.65}, clf)
	assert.Equal(t, Neutral, e.Evaluate(breakoutUp(1)).Direction)

	// Classifier agreement without breakout stays neutral.
	clf.p = 0.9
	e = NewEngine(1, Config{Threshold: 0.65}, clf)
	assert.Equal(t, Neutral, e.Evaluate(insideChannel(1)).Direction)
}

func TestSellRequiresDownBreakoutAndLowProbability(t *testing.T) {
	clf := &stubClassifier{p: 0.2}
	e := NewEngine(1, Config{Threshold: 0.65}, clf)

	got := e.Evaluate(breakoutDown(1))
	assert.Equal(t, Sell, got.Direction)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	clf.p = 0.5
	e = NewEngine(1, Config{Threshold: 0.65}, clf)
	assert.Equal(t, Neutral, e.Evaluate(breakoutDown(1)).Direction)
}

func TestClassifierFailureFallsBackToNeutral(t *testing.T) {
	e := NewEngine(1, Config{Threshold: 0.65}, &stubClassifier{err: errors.New("model offline")})
	assert.Equal(t, Neutral, e.Evaluate(breakoutUp(1)).Direction)

	e = NewEngine(1, Config{Threshold: 0.65}, &stubClassifier{p: 1.5})
	assert.Equal(t, Neutral, e.Evaluate(breakoutUp(1)).Direction)

	e = NewEngine(1, Config{Threshold: 0.65}, &stubClassifier{p: -0.1})
	assert.Equal(t, Neutral, e.Evaluate(breakoutUp(1)).Direction)
}

func TestCooldownSuppressesRepeatSignals(t *testing.T) {
	clf := &stubClassifier{p: 0.9}
	e := NewEngine(1, Config{Threshold: 0.65, Cooldown: 10 * time.Second}, clf)

	first := e.Evaluate(breakoutUp(int64(time.Second)))
	assert.Equal(t, Buy, first.Direction)

	second := e.Evaluate(breakoutUp(int64(5 * time.Second)))
	assert.Equal(t, Neutral, second.Direction)

	third := e.Evaluate(breakoutUp(int64(12 * time.Second)))
	assert.Equal(t, Buy, third.Direction)
}

func TestExitCheck(t *testing.T) {
	clf := &stubClassifier{p: 0.5}
	e := NewEngine(1, DefaultConfig(), clf)

	_, exit := e.ExitCheck(0, insideChannel(1))
	assert.False(t, exit)

	// Long exits on strong reversal probability.
	clf.p = 0.2
	dir, exit := e.ExitCheck(10, feature.Snapshot{ChannelPosition: 0.5})
	assert.True(t, exit)
	assert.Equal(t, Sell, dir)

	// Long exits when price slides to the bottom of the channel.
	clf.p = 0.5
	dir, exit = e.ExitCheck(10, feature.Snapshot{ChannelPosition: 0.3})
	assert.True(t, exit)
	assert.Equal(t, Sell, dir)

	// Short exits symmetrically.
	clf.p = 0.8
	dir, exit = e.ExitCheck(-10, feature.Snapshot{ChannelPosition: 0.5})
	assert.True(t, exit)
	assert.Equal(t, Buy, dir)

	clf.p = 0.5
	_, exit = e.ExitCheck(-10, feature.Snapshot{ChannelPosition: 0.5})
	assert.False(t, exit)
}

func TestThresholdClassifier(t *testing.T) {
	c := NewThresholdClassifier(0.15)

	p, err := c.Predict(feature.Snapshot{OBI: 0.4})
	assert.NoError(t, err)
	assert.InDelta(t, 0.7, p, 1e-9)

	p, _ = c.Predict(feature.Snapshot{OBI: -0.4})
	assert.InDelta(t, 0.3, p, 1e-9)

	p, _ = c.Predict(feature.Snapshot{OBI: 0.1})
	assert.InDelta(t, 0.5, p, 1e-9)

	c.Update(feature.Snapshot{}, OutcomeUp)
	assert.Equal(t, 1, c.Samples())
}
