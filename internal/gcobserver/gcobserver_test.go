package gcobserver

import (
	"testing"
	"time"
)

type fakeSource struct {
	readings [][]Reading
	i        int
}

func (f *fakeSource) Read() []Reading {
	if f.i >= len(f.readings) {
		return f.readings[len(f.readings)-1]
	}
	r := f.readings[f.i]
	f.i++
	return r
}

func TestClassifiesMajorByName(t *testing.T) {
	src := &fakeSource{readings: [][]Reading{
		{{Name: "old-gen", Count: 0, TimeNanos: 0}},
		{{Name: "old-gen", Count: 1, TimeNanos: uint64(200 * time.Millisecond)}},
	}}
	var gotName, gotClass string
	var gotMs float64
	o := New(Config{Source: src, MinDurationMs: 50, Notify: true, OnClassified: func(name, class string, ms float64) {
		gotName, gotClass, gotMs = name, class, ms
	}})

	o.Poll(time.Unix(0, 0))
	o.Poll(time.Unix(2, 0))

	if gotName != "old-gen" || gotClass != "major" {
		t.Fatalf("classification = (%v, %v), want (old-gen, major)", gotName, gotClass)
	}
	if gotMs < 199 || gotMs > 201 {
		t.Fatalf("avg pause = %v, want ~200ms", gotMs)
	}
}

func TestOverheadPercent(t *testing.T) {
	src := &fakeSource{readings: [][]Reading{
		{{Name: "gc", Count: 0, TimeNanos: 0}},
		{{Name: "gc", Count: 1, TimeNanos: uint64(200 * time.Millisecond)}},
	}}
	o := New(Config{Source: src})
	o.Poll(time.Unix(0, 0))
	o.Poll(time.Unix(2, 0))

	// One 2s interval with 200ms GC time: 100 * 200 / 2000 = 10%.
	if pct := o.OverheadPercent(); pct < 9.9 || pct > 10.1 {
		t.Fatalf("overhead = %v%%, want ~10%%", pct)
	}
}

func TestNoNotifyBelowThreshold(t *testing.T) {
	src := &fakeSource{readings: [][]Reading{
		{{Name: "gc", Count: 0, TimeNanos: 0}},
		{{Name: "gc", Count: 1, TimeNanos: uint64(5 * time.Millisecond)}},
	}}
	called := false
	o := New(Config{Source: src, MinDurationMs: 50, Notify: true, OnClassified: func(string, string, float64) { called = true }})
	o.Poll(time.Unix(0, 0))
	o.Poll(time.Unix(2, 0))
	if called {
		t.Fatalf("classification callback fired below MinDurationMs")
	}
}
