// Package culler implements the frustum-based mob AI culler from spec.md
// §4.6: for each mob near a player, keep its AI active if it is close
// behind the player or inside any player's view cone, otherwise disable it.
// The vector math is grounded on the teacher's use of go-gl/mathgl (mgl64)
// for position/direction math across server/world/portal.go and the pmgen
// terrain populator.
package culler

import (
	"math"

	"github.com/df-mc/guardian/host"
	"github.com/go-gl/mathgl/mgl64"
)

// Config holds the culler's tunables (spec.md §6:
// modules.mob-ai.{active-radius,fov-degrees,behind-safe-radius,protected}).
type Config struct {
	ActiveRadius      float64
	FOVDegrees        float64
	BehindSafeRadius  float64
	ProtectedTypeKeys map[string]bool
}

// Decision is the culler's verdict for one mob.
type Decision uint8

const (
	// NoChange means the mob's current AI state already matches the
	// decision; no mutation is needed.
	NoChange Decision = iota
	// EnableAI means a currently-unaware mob should become aware.
	EnableAI
	// DisableAI means a currently-aware mob should become unaware.
	DisableAI
)

// toMgl converts a host.Vec3 to an mgl64.Vec3.
func toMgl(v host.Vec3) mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

// Evaluate decides the AI state for a single mob given the players in its
// world, following spec.md §4.6's algorithm exactly:
//   - skip mobs outside ActiveRadius of every player
//   - within BehindSafeRadius of any player: always keep aware
//   - otherwise: aware if within the field of view of any player
//
// A zero-length distance to a player is treated as visible, matching the
// spec's explicit edge case.
func Evaluate(cfg Config, mob host.EntityRef, players []host.PlayerRef) Decision {
	if cfg.ProtectedTypeKeys[mob.TypeKey] || mob.Caps.Attrs.Named || mob.Caps.Attrs.Tamed {
		return NoChange
	}

	cosHalfFOV := math.Cos(cfg.FOVDegrees / 2 * math.Pi / 180)
	mobPos := toMgl(mob.Pos)

	keepAware := false
	withinRange := false
	for _, p := range players {
		if p.World != mob.World {
			continue
		}
		diff := mobPos.Sub(toMgl(p.Pos))
		dist := diff.Len()
		if dist > cfg.ActiveRadius {
			continue
		}
		withinRange = true
		if dist < cfg.BehindSafeRadius {
			keepAware = true
			break
		}
		if dist == 0 {
			// Zero-length distance: treated as visible per spec.md §4.6.
			keepAware = true
			break
		}
		look := toMgl(p.Look)
		if look.Len() == 0 {
			continue
		}
		dir := diff.Normalize()
		if dir.Dot(look.Normalize()) >= cosHalfFOV {
			keepAware = true
			break
		}
	}

	if !withinRange {
		return NoChange
	}
	switch {
	case mob.Caps.Attrs.Aware && !keepAware:
		return DisableAI
	case !mob.Caps.Attrs.Aware && keepAware:
		return EnableAI
	default:
		return NoChange
	}
}
