// Package laganalyzer implements spec.md §4.12's Lag-Source Analyzer: an
// off-main classifier over a per-world entity/chunk snapshot that surfaces
// the dominant lag contributors, sorted by severity. Built atop
// internal/snapshot's generic harness, grounded on the teacher's
// server/world/world.go EntityCount-style per-world bookkeeping generalised
// into a full diagnostic pass.
package laganalyzer

import "sort"

// Kind classifies a lag source.
type Kind string

const (
	KindEntityOverload Kind = "entity-overload"
	KindEntityType     Kind = "entity-type"
	KindEntityDensity  Kind = "entity-density"
	KindChunkOverload  Kind = "chunk-overload"
	KindChunkRate      Kind = "chunk-rate"
	KindPluginTasks    Kind = "plugin-tasks"
)

// Source is one diagnosed lag contributor.
type Source struct {
	Kind   Kind
	World  string
	Detail string // e.g. entity type key, chunk key, or plugin name
	Count  float64
}

// WorldSnapshot is the per-world state captured by the main-thread snapshot
// phase.
type WorldSnapshot struct {
	World          string
	TotalEntities  int
	LoadedChunks   int
	PerTypeCounts  map[string]int
	PerChunkCounts map[string]int // keyed by packed chunk identity
}

// Snapshot is the full incremental snapshot taken once per cycle.
type Snapshot struct {
	Worlds      []WorldSnapshot
	PluginTasks map[string]int
}

// Thresholds configures the analyzer's classification cutoffs.
type Thresholds struct {
	EntityOverload   int
	EntityTypeMinor  int
	TopNTypes        int
	EntityDensity    int
	ChunkWarn        int
	ChunkRatePerSec  float64
	PluginTaskWarn   int
}

// Analyzer holds the previous cycle's per-chunk counts to compute load rate
// (spec.md §4.12: "Previous chunk counts are stored to compute rate").
type Analyzer struct {
	thresholds Thresholds
	prevChunk  map[string]map[string]int // world -> chunk key -> count
}

// New creates an Analyzer.
func New(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds, prevChunk: make(map[string]map[string]int)}
}

// Analyze classifies one snapshot, producing lag sources sorted descending
// by Count. elapsedSeconds is the wall time since the previous cycle, used
// for the chunk-rate source.
func (a *Analyzer) Analyze(snap Snapshot, elapsedSeconds float64) []Source {
	var sources []Source

	for _, w := range snap.Worlds {
		if w.TotalEntities > a.thresholds.EntityOverload {
			sources = append(sources, Source{Kind: KindEntityOverload, World: w.World, Count: float64(w.TotalEntities)})
		}

		sources = append(sources, a.topTypeSources(w)...)
		sources = append(sources, a.densitySources(w)...)

		if w.LoadedChunks > a.thresholds.ChunkWarn {
			sources = append(sources, Source{Kind: KindChunkOverload, World: w.World, Count: float64(w.LoadedChunks)})
		}

		sources = append(sources, a.rateSources(w, elapsedSeconds)...)
	}

	for plugin, count := range snap.PluginTasks {
		if count > a.thresholds.PluginTaskWarn {
			sources = append(sources, Source{Kind: KindPluginTasks, Detail: plugin, Count: float64(count)})
		}
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Count > sources[j].Count })
	return sources
}

func (a *Analyzer) topTypeSources(w WorldSnapshot) []Source {
	type typeCount struct {
		typeKey string
		count   int
	}
	candidates := make([]typeCount, 0, len(w.PerTypeCounts))
	for t, c := range w.PerTypeCounts {
		if c > a.thresholds.EntityTypeMinor {
			candidates = append(candidates, typeCount{t, c})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count > candidates[j].count })
	n := a.thresholds.TopNTypes
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}
	out := make([]Source, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, Source{Kind: KindEntityType, World: w.World, Detail: c.typeKey, Count: float64(c.count)})
	}
	return out
}

func (a *Analyzer) densitySources(w WorldSnapshot) []Source {
	var out []Source
	for chunkKey, c := range w.PerChunkCounts {
		if c >= a.thresholds.EntityDensity {
			out = append(out, Source{Kind: KindEntityDensity, World: w.World, Detail: chunkKey, Count: float64(c)})
		}
	}
	return out
}

func (a *Analyzer) rateSources(w WorldSnapshot, elapsedSeconds float64) []Source {
	prev := a.prevChunk[w.World]
	a.prevChunk[w.World] = cloneCounts(w.PerChunkCounts)
	if prev == nil || elapsedSeconds <= 0 {
		return nil
	}

	prevTotal, curTotal := sumCounts(prev), sumCounts(w.PerChunkCounts)
	delta := curTotal - prevTotal
	if delta <= 0 {
		return nil
	}
	rate := float64(delta) / elapsedSeconds
	if rate > a.thresholds.ChunkRatePerSec {
		return []Source{{Kind: KindChunkRate, World: w.World, Count: rate}}
	}
	return nil
}

func cloneCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sumCounts(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
