package guardian

import (
	"time"

	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/chunkkey"
	"github.com/df-mc/guardian/internal/culler"
	"github.com/df-mc/guardian/internal/laganalyzer"
	"github.com/df-mc/guardian/internal/limiter"
	"github.com/df-mc/guardian/internal/snapshot"
	"github.com/df-mc/guardian/internal/workload"
)

// worldSnapshot is one world's entity/chunk state as observed incrementally
// on the main thread, shared by every scanner built atop internal/snapshot
// (spec.md §4.5: "the same snapshot shape, different off-main analyses").
type worldSnapshot struct {
	ref           host.WorldRef
	players       []host.PlayerRef
	entities      []host.EntityRef
	byChunk       map[int64][]host.EntityRef
	perTypeCounts map[string]int
}

// entitySnapshot is the full incremental snapshot taken once per scanner
// cycle across every loaded world.
type entitySnapshot struct {
	Worlds []worldSnapshot
}

type pendingChunk struct {
	worldIdx int
	pos      host.ChunkPos
}

// entityBuilder walks every loaded world's chunks a few at a time, grounded
// on the teacher's redstone.ChunkWorker budget-and-reschedule loop
// generalised from "redstone events" to "chunk entity reads" (spec.md §4.5).
type entityBuilder struct {
	adapter          host.Adapter
	clock            host.Clock
	maxChunksPerStep int

	initialized bool
	pending     []pendingChunk
	worlds      []worldSnapshot
}

const defaultMaxChunksPerStep = 20

func newEntityBuilder(adapter host.Adapter, clock host.Clock) *entityBuilder {
	return &entityBuilder{adapter: adapter, clock: clock, maxChunksPerStep: defaultMaxChunksPerStep}
}

func (b *entityBuilder) Step(_ time.Time, deadline time.Time) bool {
	if !b.initialized {
		b.initialize()
		b.initialized = true
	}
	stepped := 0
	for len(b.pending) > 0 {
		if b.maxChunksPerStep > 0 && stepped >= b.maxChunksPerStep {
			return false
		}
		if b.clock.Now().After(deadline) {
			return false
		}
		pc := b.pending[0]
		b.pending = b.pending[1:]

		w := &b.worlds[pc.worldIdx]
		ents := b.adapter.EntitiesInChunk(w.ref.ID, pc.pos)
		if len(ents) > 0 {
			key := chunkkey.Key{World: w.ref.ID, X: pc.pos.X, Z: pc.pos.Z}.PackedID()
			w.byChunk[key] = ents
			w.entities = append(w.entities, ents...)
			for _, e := range ents {
				w.perTypeCounts[e.TypeKey]++
			}
		}
		stepped++
	}
	return true
}

func (b *entityBuilder) initialize() {
	for _, wr := range b.adapter.Worlds() {
		idx := len(b.worlds)
		b.worlds = append(b.worlds, worldSnapshot{
			ref:           wr,
			players:       b.adapter.Players(wr.ID),
			byChunk:       make(map[int64][]host.EntityRef),
			perTypeCounts: make(map[string]int),
		})
		for _, pos := range b.adapter.LoadedChunks(wr.ID) {
			b.pending = append(b.pending, pendingChunk{worldIdx: idx, pos: pos})
		}
	}
}

func (b *entityBuilder) Result() entitySnapshot { return entitySnapshot{Worlds: b.worlds} }

// awarenessMutation pairs an entity with its intended aware state.
type awarenessMutation struct{ aware bool }

// densityMutation pairs an entity with its intended aware/collidable state.
type densityMutation struct{ aware, collidable bool }

func newCullerPipeline(cfg culler.Config, interval time.Duration, adapter host.Adapter, sched host.Scheduler, clock host.Clock, dist *workload.Distributor) *snapshot.Pipeline[entitySnapshot, host.EntityID, awarenessMutation] {
	return snapshot.New(snapshot.Config[entitySnapshot, host.EntityID, awarenessMutation]{
		Scheduler:       sched,
		Clock:           clock,
		TriggerInterval: interval,
		NewBuilder:      func() snapshot.Builder[entitySnapshot] { return newEntityBuilder(adapter, clock) },
		Analyze: func(s entitySnapshot) []snapshot.Mutation[host.EntityID, awarenessMutation] {
			var out []snapshot.Mutation[host.EntityID, awarenessMutation]
			for _, w := range s.Worlds {
				for _, e := range w.entities {
					if !isMob(e.Caps.Kind) {
						continue
					}
					switch culler.Evaluate(cfg, e, w.players) {
					case culler.EnableAI:
						out = append(out, snapshot.Mutation[host.EntityID, awarenessMutation]{Key: e.ID, Payload: awarenessMutation{aware: true}})
					case culler.DisableAI:
						out = append(out, snapshot.Mutation[host.EntityID, awarenessMutation]{Key: e.ID, Payload: awarenessMutation{aware: false}})
					}
				}
			}
			return out
		},
		ApplyBatch: func(batch []snapshot.Mutation[host.EntityID, awarenessMutation]) {
			for _, m := range batch {
				adapter.SetEntityAware(m.Key, m.Payload.aware)
			}
		},
	}, dist)
}

func newChunkLimiterPipeline(cfg limiter.ChunkLimiterConfig, interval time.Duration, adapter host.Adapter, sched host.Scheduler, clock host.Clock, dist *workload.Distributor) *snapshot.Pipeline[entitySnapshot, host.EntityID, struct{}] {
	return snapshot.New(snapshot.Config[entitySnapshot, host.EntityID, struct{}]{
		Scheduler:       sched,
		Clock:           clock,
		TriggerInterval: interval,
		NewBuilder:      func() snapshot.Builder[entitySnapshot] { return newEntityBuilder(adapter, clock) },
		Analyze: func(s entitySnapshot) []snapshot.Mutation[host.EntityID, struct{}] {
			var out []snapshot.Mutation[host.EntityID, struct{}]
			for _, w := range s.Worlds {
				for _, ents := range w.byChunk {
					for _, e := range limiter.SelectForRemoval(cfg, ents) {
						out = append(out, snapshot.Mutation[host.EntityID, struct{}]{Key: e.ID})
					}
				}
			}
			return out
		},
		ApplyBatch: func(batch []snapshot.Mutation[host.EntityID, struct{}]) {
			for _, m := range batch {
				adapter.RemoveEntity(m.Key)
			}
		},
	}, dist)
}

func newEntityLimiterPipeline(table limiter.LimitTable, interval time.Duration, adapter host.Adapter, sched host.Scheduler, clock host.Clock, dist *workload.Distributor) *snapshot.Pipeline[entitySnapshot, host.EntityID, struct{}] {
	return snapshot.New(snapshot.Config[entitySnapshot, host.EntityID, struct{}]{
		Scheduler:       sched,
		Clock:           clock,
		TriggerInterval: interval,
		NewBuilder:      func() snapshot.Builder[entitySnapshot] { return newEntityBuilder(adapter, clock) },
		Analyze: func(s entitySnapshot) []snapshot.Mutation[host.EntityID, struct{}] {
			var out []snapshot.Mutation[host.EntityID, struct{}]
			for _, w := range s.Worlds {
				groups := limiter.BuildGroups(w.entities, w.players)
				for _, e := range limiter.SelectExcessForRemoval(table, groups) {
					out = append(out, snapshot.Mutation[host.EntityID, struct{}]{Key: e.ID})
				}
			}
			return out
		},
		ApplyBatch: func(batch []snapshot.Mutation[host.EntityID, struct{}]) {
			for _, m := range batch {
				adapter.RemoveEntity(m.Key)
			}
		},
	}, dist)
}

func newDensityPipeline(cfg limiter.DensityConfig, interval time.Duration, adapter host.Adapter, sched host.Scheduler, clock host.Clock, dist *workload.Distributor) *snapshot.Pipeline[entitySnapshot, host.EntityID, densityMutation] {
	return snapshot.New(snapshot.Config[entitySnapshot, host.EntityID, densityMutation]{
		Scheduler:       sched,
		Clock:           clock,
		TriggerInterval: interval,
		NewBuilder:      func() snapshot.Builder[entitySnapshot] { return newEntityBuilder(adapter, clock) },
		Analyze: func(s entitySnapshot) []snapshot.Mutation[host.EntityID, densityMutation] {
			var out []snapshot.Mutation[host.EntityID, densityMutation]
			for _, w := range s.Worlds {
				for _, ents := range w.byChunk {
					byType := make(map[string][]host.EntityRef)
					for _, e := range ents {
						byType[e.TypeKey] = append(byType[e.TypeKey], e)
					}
					for typeKey, typed := range byType {
						for id, decision := range limiter.Evaluate(cfg, typeKey, typed) {
							switch decision {
							case limiter.DensitySuppress:
								out = append(out, snapshot.Mutation[host.EntityID, densityMutation]{Key: id, Payload: densityMutation{aware: false, collidable: false}})
							case limiter.DensityRecover:
								out = append(out, snapshot.Mutation[host.EntityID, densityMutation]{Key: id, Payload: densityMutation{aware: true, collidable: true}})
							}
						}
					}
				}
			}
			return out
		},
		ApplyBatch: func(batch []snapshot.Mutation[host.EntityID, densityMutation]) {
			for _, m := range batch {
				adapter.SetEntityAware(m.Key, m.Payload.aware)
				adapter.SetEntityCollidable(m.Key, m.Payload.collidable)
			}
		},
	}, dist)
}

// newLagAnalyzerPipeline reuses the snapshot harness for a diagnostic-only
// scanner: its "mutation" is an admin notification rather than a host state
// change, dispatched through the same distributor for consistency with
// spec.md §5's "all host-state mutations flow through the WorkloadDistributor".
func newLagAnalyzerPipeline(thresholds laganalyzer.Thresholds, adapter host.Adapter, sched host.Scheduler, clock host.Clock, dist *workload.Distributor) *snapshot.Pipeline[entitySnapshot, string, string] {
	analyzer := laganalyzer.New(thresholds)
	lastRun := clock.Now()
	return snapshot.New(snapshot.Config[entitySnapshot, string, string]{
		Scheduler:       sched,
		Clock:           clock,
		TriggerInterval: 10 * time.Second,
		NewBuilder:      func() snapshot.Builder[entitySnapshot] { return newEntityBuilder(adapter, clock) },
		Analyze: func(s entitySnapshot) []snapshot.Mutation[string, string] {
			now := clock.Now()
			elapsed := now.Sub(lastRun).Seconds()
			lastRun = now

			snap := laganalyzer.Snapshot{}
			for _, w := range s.Worlds {
				snap.Worlds = append(snap.Worlds, laganalyzer.WorldSnapshot{
					World:          w.ref.Name,
					TotalEntities:  len(w.entities),
					LoadedChunks:   w.ref.LoadedChunks,
					PerTypeCounts:  w.perTypeCounts,
					PerChunkCounts: perChunkEntityCounts(w.byChunk),
				})
			}
			sources := analyzer.Analyze(snap, elapsed)
			var out []snapshot.Mutation[string, string]
			for _, src := range sources {
				out = append(out, snapshot.Mutation[string, string]{
					Key:     string(src.Kind) + ":" + src.World + ":" + src.Detail,
					Payload: "&6lag source [" + string(src.Kind) + "] " + src.World + " " + src.Detail,
				})
			}
			return out
		},
		ApplyBatch: func(batch []snapshot.Mutation[string, string]) {
			for _, m := range batch {
				adapter.Notify(host.AudienceAdmins, host.ChannelChat, m.Payload)
			}
		},
	}, dist)
}

func perChunkEntityCounts(byChunk map[int64][]host.EntityRef) map[string]int {
	out := make(map[string]int, len(byChunk))
	for id, ents := range byChunk {
		out[chunkIDString(id)] = len(ents)
	}
	return out
}

func chunkIDString(id int64) string {
	neg := id < 0
	if neg {
		id = -id
	}
	if id == 0 {
		return "0"
	}
	var buf [24]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func isMob(k host.EntityKind) bool {
	switch k {
	case host.KindMonster, host.KindPassive, host.KindVillager, host.KindTameable, host.KindMobGeneric:
		return true
	default:
		return false
	}
}
