// Package limiter implements spec.md §4.7's three population controls:
// ChunkLimiter, EntityLimiter and DensityOptimizer. All three rank entities
// for removal or AI suppression rather than acting indiscriminately, grounded
// on the teacher's server/world/entity_despawn.go category ordering and the
// generatorWorker batching pattern in server/world/world.go.
package limiter

import (
	"sort"

	"github.com/df-mc/guardian/host"
)

// Category orders entity removability: lower values are removed first.
// Mirrors spec.md §4.7's "dropped-item < experience-orb < hostile-mob < other-living".
type Category int

const (
	CategoryDroppedItem Category = iota
	CategoryExperienceOrb
	CategoryHostileMob
	CategoryOtherLiving
)

// CategoryOf classifies an entity by its host Kind.
func CategoryOf(k host.EntityKind) Category {
	switch k {
	case host.KindItem:
		return CategoryDroppedItem
	case host.KindExperienceOrb:
		return CategoryExperienceOrb
	case host.KindMonster:
		return CategoryHostileMob
	default:
		return CategoryOtherLiving
	}
}

// Protected reports whether an entity is exempt from ChunkLimiter removal:
// a whitelisted type, or named/tamed/leashed/mounted, or an armor stand.
func Protected(whitelist map[string]bool, e host.EntityRef) bool {
	if whitelist[e.TypeKey] {
		return true
	}
	if e.Caps.Kind == host.KindArmorStand {
		return true
	}
	a := e.Caps.Attrs
	return a.Named || a.Tamed || a.Leashed || a.Mounted
}

// ChunkLimiterConfig holds the per-chunk cap and protection whitelist
// (spec.md §6: modules.entities.chunk-limiter.{max-entities-per-chunk,whitelist}).
type ChunkLimiterConfig struct {
	MaxEntitiesPerChunk int
	Whitelist           map[string]bool
}

// SelectForRemoval returns the subset of entities in a single chunk that
// exceed MaxEntitiesPerChunk, ranked by ascending Category (least valuable
// first) so the excess removed is always the cheapest to lose. Protected
// entities are never returned.
func SelectForRemoval(cfg ChunkLimiterConfig, entities []host.EntityRef) []host.EntityRef {
	if cfg.MaxEntitiesPerChunk <= 0 || len(entities) <= cfg.MaxEntitiesPerChunk {
		return nil
	}
	removable := make([]host.EntityRef, 0, len(entities))
	for _, e := range entities {
		if !Protected(cfg.Whitelist, e) {
			removable = append(removable, e)
		}
	}
	excess := len(entities) - cfg.MaxEntitiesPerChunk
	if excess > len(removable) {
		excess = len(removable)
	}
	sort.SliceStable(removable, func(i, j int) bool {
		return CategoryOf(removable[i].Caps.Kind) < CategoryOf(removable[j].Caps.Kind)
	})
	return removable[:excess]
}
