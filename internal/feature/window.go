package feature

// timedValue is one sample of a time-windowed series.
type timedValue struct {
	tsNano int64
	value  float64
}

// extremeWindow yields the running max or min of a series over a sliding
// time window using a monotonic deque: amortized O(1) per sample.
type extremeWindow struct {
	deque []timedValue
	max   bool
}

func newExtremeWindow(max bool) *extremeWindow {
	return &extremeWindow{max: max}
}

func (w *extremeWindow) dominates(a, b float64) bool {
	if w.max {
		return a >= b
	}
	return a <= b
}

// Push appends a sample, dropping dominated tail entries.
func (w *extremeWindow) Push(tsNano int64, value float64) {
	for len(w.deque) > 0 && w.dominates(value, w.deque[len(w.deque)-1].value) {
		w.deque = w.deque[:len(w.deque)-1]
	}
	w.deque = append(w.deque, timedValue{tsNano: tsNano, value: value})
}

// Evict drops samples older than the cutoff.
func (w *extremeWindow) Evict(cutoffNano int64) {
	for len(w.deque) > 0 && w.deque[0].tsNano < cutoffNano {
		w.deque = w.deque[1:]
	}
}

// Value returns the current extreme, or false when the window is empty.
func (w *extremeWindow) Value() (float64, bool) {
	if len(w.deque) == 0 {
		return 0, false
	}
	return w.deque[0].value, true
}

func (w *extremeWindow) Reset() {
	w.deque = w.deque[:0]
}
