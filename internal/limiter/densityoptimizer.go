package limiter

import "github.com/df-mc/guardian/host"

// DensityDecision is the verdict for one entity within an over-dense
// per-chunk, per-type group.
type DensityDecision uint8

const (
	// DensityNoChange means the entity's AI/collision state already matches
	// the decision.
	DensityNoChange DensityDecision = iota
	// DensitySuppress disables AI and collision for an entity beyond the
	// kept threshold.
	DensitySuppress
	// DensityRecover re-enables AI and collision for an entity that is now
	// within the kept threshold (or the chunk fell back under the limit).
	DensityRecover
)

// DensityConfig holds the per-type caps and the protection bypass toggle
// (spec.md §4.7: "Bypasses for tamed/named/leashed optional").
type DensityConfig struct {
	LimitPerType   map[string]int
	BypassShielded bool
}

func bypassed(cfg DensityConfig, e host.EntityRef) bool {
	if !cfg.BypassShielded {
		return false
	}
	a := e.Caps.Attrs
	return a.Named || a.Tamed || a.Leashed
}

// Evaluate implements spec.md §4.7's DensityOptimizer: within one chunk's
// entities of a single type, the first Limit (by input order, which callers
// should pre-sort e.g. by spawn order or id) stay alive/colliding; the rest
// are suppressed. Entities already beyond the limit recover once the chunk
// population falls back at or under the limit.
func Evaluate(cfg DensityConfig, typeKey string, entitiesOfType []host.EntityRef) map[host.EntityID]DensityDecision {
	decisions := make(map[host.EntityID]DensityDecision, len(entitiesOfType))
	limit, ok := cfg.LimitPerType[typeKey]
	if !ok || limit < 0 {
		return decisions
	}
	for i, e := range entitiesOfType {
		if bypassed(cfg, e) {
			continue
		}
		wantSuppressed := i >= limit
		isSuppressed := !e.Caps.Attrs.Collidable && !e.Caps.Attrs.Aware
		switch {
		case wantSuppressed && !isSuppressed:
			decisions[e.ID] = DensitySuppress
		case !wantSuppressed && isSuppressed:
			decisions[e.ID] = DensityRecover
		default:
			decisions[e.ID] = DensityNoChange
		}
	}
	return decisions
}
