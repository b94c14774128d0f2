// Package chunkguard implements spec.md §4.9's WorldChunkGuard state machine:
// detect worlds carrying more loaded chunks than expected, soft-unload the
// furthest candidates, retry, and escalate to full evacuation. Grounded on
// the teacher's server/world generator-queue backpressure ladder (queue
// depth thresholds stepping from throttle to drop), generalised from
// generation backpressure to unload escalation.
package chunkguard

import (
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/workload"
)

// State is a world's position in the Ok → Overloaded → Evacuating ladder.
type State uint8

const (
	StateOk State = iota
	StateOverloaded
	StateEvacuating
)

// WorldState is the per-world retry bookkeeping (spec.md §3's
// WorldOverloadState).
type WorldState struct {
	State   State
	Retries int
}

// Config holds the guard's tunables (spec.md §6:
// modules.chunks.world-guard.{check-interval,overload-multiplier,
// max-chunks-per-player,max-retries,evacuate-world}).
type Config struct {
	OverloadMultiplier float64
	ChunksPerPlayer    int // 0 means derive from view distance
	MaxRetries         int
	EvacuateWorld      uuid.UUID
	ExcludeRadius      int32 // chunks within this radius of a player are never unload candidates
	ReduceViewDistance bool
	Notify             bool

	Adapter   host.Adapter
	Dist      *workload.Distributor
	Scheduler host.Scheduler
	Log       *slog.Logger
}

func (c *Config) withDefaults() {
	if c.OverloadMultiplier <= 0 {
		c.OverloadMultiplier = 1.0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// reMeasureDelay is the fixed re-measurement delay after a soft-unload round
// (spec.md §4.9: "After 2 s (one dispatch round), re-measure").
const reMeasureDelay = 2 * time.Second

// Guard drives the per-world overload state machine.
type Guard struct {
	cfg    Config
	states map[uuid.UUID]*WorldState
}

// New creates a Guard.
func New(cfg Config) *Guard {
	cfg.withDefaults()
	return &Guard{cfg: cfg, states: make(map[uuid.UUID]*WorldState)}
}

func (g *Guard) stateFor(world uuid.UUID) *WorldState {
	s, ok := g.states[world]
	if !ok {
		s = &WorldState{}
		g.states[world] = s
	}
	return s
}

// ExpectedMax computes spec.md §4.9's `expected_max = max(player_count ·
// chunks_per_player, 100)`, deriving chunks-per-player from view distance as
// (2·vd+1)² when Config.ChunksPerPlayer is unset.
func (g *Guard) ExpectedMax(w host.WorldRef) int {
	perPlayer := g.cfg.ChunksPerPlayer
	if perPlayer <= 0 {
		vd := w.ViewDistance
		perPlayer = (2*vd + 1) * (2*vd + 1)
	}
	max := w.PlayerCount * perPlayer
	if max < 100 {
		max = 100
	}
	return max
}

// Overloaded reports whether a world's loaded chunk count exceeds
// expected_max · overload_multiplier.
func (g *Guard) Overloaded(w host.WorldRef) bool {
	threshold := float64(g.ExpectedMax(w)) * g.cfg.OverloadMultiplier
	return float64(w.LoadedChunks) > threshold
}

// Evaluate runs one cycle for a single world snapshot, advancing its state
// machine and dispatching the corresponding actions via the distributor.
// loaded is the world's currently loaded chunk positions and players its
// connected players, both taken from the same snapshot.
func (g *Guard) Evaluate(w host.WorldRef, loaded []host.ChunkPos, players []host.PlayerRef) {
	st := g.stateFor(w.ID)

	if !g.Overloaded(w) {
		if st.State != StateOk {
			st.State = StateOk
			st.Retries = 0
			if g.cfg.Notify {
				g.cfg.Adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&a"+w.Name+" chunk load back to normal")
			}
		}
		return
	}

	switch st.State {
	case StateOk, StateOverloaded:
		if st.Retries >= g.cfg.MaxRetries {
			st.State = StateEvacuating
			g.evacuate(w)
			return
		}
		st.State = StateOverloaded
		g.softUnloadRound(w, loaded, players, st.Retries)
		st.Retries++
		g.scheduleReMeasure(w.ID)
	case StateEvacuating:
		g.evacuate(w)
	}
}

// scheduleReMeasure arranges a fixed-delay re-check of world after one
// dispatch round (spec.md §4.9: "after 2 s (one dispatch round),
// re-measure"), independent of the caller's own, configurable check
// interval. It is a self-cancelling one-shot: TimerMain's first firing
// cancels the repeating timer before re-evaluating.
func (g *Guard) scheduleReMeasure(world uuid.UUID) {
	if g.cfg.Scheduler == nil {
		return
	}
	var cancel func()
	cancel = g.cfg.Scheduler.TimerMain(reMeasureDelay, func() {
		cancel()
		g.reMeasure(world)
	})
}

// reMeasure re-reads world's current chunk/player state from the adapter and
// re-runs Evaluate against it, continuing the overload ladder without
// waiting for the next scheduled cycle.
func (g *Guard) reMeasure(world uuid.UUID) {
	for _, w := range g.cfg.Adapter.Worlds() {
		if w.ID != world {
			continue
		}
		g.Evaluate(w, g.cfg.Adapter.LoadedChunks(world), g.cfg.Adapter.Players(world))
		return
	}
}

func (g *Guard) softUnloadRound(w host.WorldRef, loaded []host.ChunkPos, players []host.PlayerRef, retries int) {
	excess := w.LoadedChunks - g.ExpectedMax(w)
	if excess <= 0 {
		return
	}
	candidates := rankByDescendingDistance(loaded, players, g.cfg.ExcludeRadius)
	if excess > len(candidates) {
		excess = len(candidates)
	}
	targets := candidates[:excess]

	mode := host.UnloadSave
	if retries == 0 {
		mode = host.UnloadNoSave
	}
	if g.cfg.ReduceViewDistance {
		g.cfg.Dist.Enqueue(func() { g.cfg.Adapter.SetViewDistance(w.ID, w.ViewDistance-1) })
	}
	for _, pos := range targets {
		pos := pos
		g.cfg.Dist.Enqueue(func() { g.cfg.Adapter.UnloadChunk(w.ID, pos, mode) })
	}
}

func (g *Guard) evacuate(w host.WorldRef) {
	g.cfg.Dist.Enqueue(func() {
		g.cfg.Adapter.TeleportPlayers(w.ID, g.cfg.EvacuateWorld)
		outcome := g.cfg.Adapter.UnloadWorld(w.ID, host.UnloadSave)
		if outcome == host.MutationRefused {
			// Default world: force-unload its chunks individually instead.
			for _, pos := range g.cfg.Adapter.LoadedChunks(w.ID) {
				pos := pos
				g.cfg.Dist.Enqueue(func() { g.cfg.Adapter.UnloadChunk(w.ID, pos, host.UnloadSave) })
			}
		}
		if g.cfg.Notify {
			g.cfg.Adapter.Notify(host.AudienceAll, host.ChannelChat, "&c"+w.Name+" is evacuating due to chunk overload")
		}
	})
}

// State returns a world's current guard state, for diagnostics and tests.
func (g *Guard) State(world uuid.UUID) WorldState {
	if s, ok := g.states[world]; ok {
		return *s
	}
	return WorldState{}
}

type rankedChunk struct {
	pos    host.ChunkPos
	distSq int64
}

// rankByDescendingDistance ranks loaded chunks by descending squared
// distance to the nearest player, excluding any chunk within excludeRadius
// chunks of a player (spec.md §4.9).
func rankByDescendingDistance(loaded []host.ChunkPos, players []host.PlayerRef, excludeRadius int32) []host.ChunkPos {
	ranked := make([]rankedChunk, 0, len(loaded))
	for _, pos := range loaded {
		best := int64(-1)
		excluded := false
		excludeRadiusSq := int64(excludeRadius) * int64(excludeRadius)
		for _, p := range players {
			dx := int64(pos.X - p.ChunkX)
			dz := int64(pos.Z - p.ChunkZ)
			d := dx*dx + dz*dz
			if d <= excludeRadiusSq {
				excluded = true
				break
			}
			if best < 0 || d < best {
				best = d
			}
		}
		if excluded {
			continue
		}
		if best < 0 {
			best = 1 << 40 // no players in world: rank as furthest.
		}
		ranked = append(ranked, rankedChunk{pos: pos, distSq: best})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].distSq > ranked[j].distSq })
	out := make([]host.ChunkPos, len(ranked))
	for i, r := range ranked {
		out[i] = r.pos
	}
	return out
}
