package guardian

import (
	"github.com/google/uuid"

	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/threshold"
)

// nearbyRadius bounds the EntitiesNear scan used by the threshold engine's
// synchronous clear/kill/disable actions, wide enough to cover a typical
// view distance without falling back to a full chunk walk.
const nearbyRadius = 128

// capabilities builds the ThresholdEngine's Capabilities struct (spec.md
// §9's cycle-breaking design): plain function values bound to this
// Guardian, so threshold never holds a direct reference to ChunkGuard or the
// population limiters.
func (g *Guardian) capabilities() threshold.Capabilities {
	return threshold.Capabilities{
		ClearGroundItems:    func() { g.clearNearbyByKind(host.KindItem) },
		ClearXPOrbs:         func() { g.clearNearbyByKind(host.KindExperienceOrb) },
		ClearMobs:           func() { g.clearNearbyByKind(mobKinds...) },
		KillHostileMobs:     func() { g.clearNearbyByKind(host.KindMonster) },
		ReduceViewDistance:  g.reduceViewDistance,
		ReduceSimDistance:   g.reduceSimulationDistance,
		DisableMobAI:        g.disableNearbyMobAI,
		ChunkClean:          g.triggerChunkLimiter,
		EnforceEntityLimits: g.triggerEntityLimiter,
		UnloadWorldChunks:   g.forceWorldGuardCycle,
		NotifyAdmin:         func(message string) { g.adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&6"+message) },
		RestoreDefaults:     g.restoreDefaults,
		RequestLagAnalysis:  g.triggerLagAnalyzer,
	}
}

var mobKinds = []host.EntityKind{
	host.KindMonster, host.KindPassive, host.KindVillager, host.KindTameable, host.KindMobGeneric,
}

func matchesAny(k host.EntityKind, kinds []host.EntityKind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// clearNearbyByKind removes every entity of the given kinds within
// nearbyRadius of any connected player, dispatched through the
// WorkloadDistributor (spec.md §5: "all host-state mutations flow through
// the WorkloadDistributor").
func (g *Guardian) clearNearbyByKind(kinds ...host.EntityKind) {
	for _, w := range g.adapter.Worlds() {
		for _, p := range g.adapter.Players(w.ID) {
			for _, e := range g.adapter.EntitiesNear(p.ID, nearbyRadius) {
				if !matchesAny(e.Caps.Kind, kinds) {
					continue
				}
				id := e.ID
				g.Distributor.Enqueue(func() { g.adapter.RemoveEntity(id) })
			}
		}
	}
}

func (g *Guardian) disableNearbyMobAI() {
	for _, w := range g.adapter.Worlds() {
		for _, p := range g.adapter.Players(w.ID) {
			for _, e := range g.adapter.EntitiesNear(p.ID, nearbyRadius) {
				if !matchesAny(e.Caps.Kind, mobKinds) {
					continue
				}
				id := e.ID
				g.Distributor.Enqueue(func() { g.adapter.SetEntityAware(id, false) })
			}
		}
	}
}

func (g *Guardian) reduceViewDistance() {
	for _, w := range g.adapter.Worlds() {
		g.rememberOriginalViewDistance(w.ID, w.ViewDistance)
		target := w.ViewDistance - g.cfg.ViewDistance.ReduceBy
		if target < g.cfg.ViewDistance.Min {
			target = g.cfg.ViewDistance.Min
		}
		if target == w.ViewDistance {
			continue
		}
		id, t := w.ID, target
		g.Distributor.Enqueue(func() { g.adapter.SetViewDistance(id, t) })
	}
}

func (g *Guardian) reduceSimulationDistance() {
	if !g.adapter.SupportsSimulationDistance() {
		return
	}
	for _, w := range g.adapter.Worlds() {
		if !w.HasSimDistance {
			continue
		}
		g.rememberOriginalSimDistance(w.ID, w.SimulationDistance)
		target := w.SimulationDistance - g.cfg.SimDistance.ReduceBy
		if target < g.cfg.SimDistance.Min {
			target = g.cfg.SimDistance.Min
		}
		if target == w.SimulationDistance {
			continue
		}
		id, t := w.ID, target
		g.Distributor.Enqueue(func() { g.adapter.SetSimulationDistance(id, t) })
	}
}

func (g *Guardian) rememberOriginalViewDistance(world uuid.UUID, current int) {
	if _, ok := g.origViewDistance[world]; !ok {
		g.origViewDistance[world] = current
	}
}

func (g *Guardian) rememberOriginalSimDistance(world uuid.UUID, current int) {
	if _, ok := g.origSimDistance[world]; !ok {
		g.origSimDistance[world] = current
	}
}

// restoreDefaults reverts every world's view and simulation distance to the
// value observed the first time a threshold action reduced it, per spec.md
// §4.11's recovery transition.
func (g *Guardian) restoreDefaults() {
	for world, vd := range g.origViewDistance {
		world, vd := world, vd
		g.Distributor.Enqueue(func() { g.adapter.SetViewDistance(world, vd) })
	}
	g.origViewDistance = make(map[uuid.UUID]int)

	if g.adapter.SupportsSimulationDistance() {
		for world, sd := range g.origSimDistance {
			world, sd := world, sd
			g.Distributor.Enqueue(func() { g.adapter.SetSimulationDistance(world, sd) })
		}
	}
	g.origSimDistance = make(map[uuid.UUID]int)
}

func (g *Guardian) triggerChunkLimiter() {
	if g.chunkLimiter != nil {
		g.chunkLimiter.Trigger()
	}
}

func (g *Guardian) triggerEntityLimiter() {
	if g.entityLimiter != nil {
		g.entityLimiter.Trigger()
	}
}

func (g *Guardian) triggerLagAnalyzer() {
	if g.lagAnalyzer != nil {
		g.lagAnalyzer.Trigger()
	}
}

// forceWorldGuardCycle runs an immediate WorldChunkGuard evaluation for
// every loaded world, independent of its normal check-interval timer,
// answering the threshold engine's unload-world-chunks action.
func (g *Guardian) forceWorldGuardCycle() {
	if g.ChunkGuard == nil {
		return
	}
	g.runWorldGuardCycle()
}
