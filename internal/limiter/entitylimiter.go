package limiter

import (
	"sort"

	"github.com/df-mc/guardian/host"
)

// LimitTable resolves an entity-type limit, looking up specific type first,
// then its category, then falling back to Default. A negative limit means
// unbounded, per spec.md §8's "limit[type] < 0" invariant.
type LimitTable struct {
	PerType     map[string]int
	PerCategory map[Category]int
	Default     int
}

// limitFor resolves the effective limit for one entity, per spec.md §4.7:
// "specific type → first matching category → global default".
func (t LimitTable) limitFor(typeKey string, cat Category) int {
	if v, ok := t.PerType[typeKey]; ok {
		return v
	}
	if v, ok := t.PerCategory[cat]; ok {
		return v
	}
	return t.Default
}

// EntityGroup is one (world, type) population observed at snapshot time.
type EntityGroup struct {
	TypeKey  string
	Category Category
	Entities []rankedEntity
}

type rankedEntity struct {
	ref    host.EntityRef
	distSq float64
}

// BuildGroups groups a world's non-player entity snapshot by type, attaching
// the squared distance to the nearest player for ranking (spec.md §4.7's
// off-main analysis phase).
func BuildGroups(entities []host.EntityRef, players []host.PlayerRef) []EntityGroup {
	byType := make(map[string][]rankedEntity)
	for _, e := range entities {
		byType[e.TypeKey] = append(byType[e.TypeKey], rankedEntity{ref: e, distSq: nearestPlayerDistSq(e, players)})
	}
	groups := make([]EntityGroup, 0, len(byType))
	for typeKey, ents := range byType {
		cat := CategoryOf(ents[0].ref.Caps.Kind)
		groups = append(groups, EntityGroup{TypeKey: typeKey, Category: cat, Entities: ents})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].TypeKey < groups[j].TypeKey })
	return groups
}

func nearestPlayerDistSq(e host.EntityRef, players []host.PlayerRef) float64 {
	best := -1.0
	for _, p := range players {
		if p.World != e.World {
			continue
		}
		dx, dy, dz := e.Pos.X-p.Pos.X, e.Pos.Y-p.Pos.Y, e.Pos.Z-p.Pos.Z
		d := dx*dx + dy*dy + dz*dz
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 1e18 // no player in world: rank as furthest, still eligible.
	}
	return best
}

// SelectExcessForRemoval implements spec.md §4.7's EntityLimiter analysis: for
// any group whose size exceeds its resolved limit, sort its members by
// descending distance from the nearest player and mark the furthest
// (size-limit) entities for removal. Enforcement overrides the Protected
// exemptions used by ChunkLimiter, by design (anti-griefing intent).
func SelectExcessForRemoval(table LimitTable, groups []EntityGroup) []host.EntityRef {
	var out []host.EntityRef
	for _, g := range groups {
		limit := table.limitFor(g.TypeKey, g.Category)
		if limit < 0 || len(g.Entities) <= limit {
			continue
		}
		ents := make([]rankedEntity, len(g.Entities))
		copy(ents, g.Entities)
		sort.Slice(ents, func(i, j int) bool { return ents[i].distSq > ents[j].distSq })
		excess := len(ents) - limit
		for i := 0; i < excess; i++ {
			out = append(out, ents[i].ref)
		}
	}
	return out
}

// Batch splits a removal list into fixed-size batches (spec.md §4.7: "Batched
// removals dispatch at batch size 50").
func Batch(entities []host.EntityRef, size int) [][]host.EntityRef {
	if size <= 0 {
		size = 50
	}
	var batches [][]host.EntityRef
	for start := 0; start < len(entities); start += size {
		end := start + size
		if end > len(entities) {
			end = len(entities)
		}
		batches = append(batches, entities[start:end])
	}
	return batches
}
