package metrics

// WindowAvg is a rolling average over a bounded number of one-second TPS
// samples (spec.md §3). Reading an empty window returns 20.0, the value of a
// perfectly healthy, unsampled server.
type WindowAvg struct {
	ring *floatRing
}

func newWindowAvg(lengthSeconds int) *WindowAvg {
	return &WindowAvg{ring: newFloatRing(lengthSeconds)}
}

func (w *WindowAvg) record(v float64) { w.ring.push(v) }

// Average returns sum/len over the retained samples, or 20.0 if the window
// holds no samples yet.
func (w *WindowAvg) Average() float64 {
	avg, ok := w.ring.avg()
	if !ok {
		return 20.0
	}
	return avg
}

// WindowLengths are the five rolling-average windows required by spec.md §2:
// 5s, 10s, 1m, 5m, 15m, expressed as a count of one-second TpsSecond samples.
var WindowLengths = map[string]int{
	"5s":  5,
	"10s": 10,
	"1m":  60,
	"5m":  300,
	"15m": 900,
}

// MetricsWindow holds the five windowed TPS averages fed once per elapsed
// wall second by TickSampler.
type MetricsWindow struct {
	windows map[string]*WindowAvg
}

// NewMetricsWindow creates a MetricsWindow with the standard five windows.
func NewMetricsWindow() *MetricsWindow {
	m := &MetricsWindow{windows: make(map[string]*WindowAvg, len(WindowLengths))}
	for name, length := range WindowLengths {
		m.windows[name] = newWindowAvg(length)
	}
	return m
}

// record pushes a single TpsSecond sample into every window.
func (m *MetricsWindow) record(tps float64) {
	for _, w := range m.windows {
		w.record(tps)
	}
}

// Average returns the rolling average for the named window ("5s", "10s",
// "1m", "5m" or "15m"). It returns 20.0 for an unknown window name.
func (m *MetricsWindow) Average(name string) float64 {
	w, ok := m.windows[name]
	if !ok {
		return 20.0
	}
	return w.Average()
}
