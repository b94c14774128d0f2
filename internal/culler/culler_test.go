package culler

import (
	"testing"

	"github.com/df-mc/guardian/host"
	"github.com/google/uuid"
)

func mkMob(aware bool, pos host.Vec3) host.EntityRef {
	return host.EntityRef{
		ID:   1,
		Pos:  pos,
		Caps: host.Capabilities{Kind: host.KindMonster, Attrs: host.Attributes{Aware: aware}},
	}
}

func TestMobOutsideActiveRadiusIsUnchanged(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	mob := mkMob(true, host.Vec3{X: 100})
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != NoChange {
		t.Fatalf("got %v, want NoChange", got)
	}
}

func TestMobWithinBehindSafeRadiusStaysAware(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	// Mob directly behind the player's look direction, inside the safe radius.
	mob := mkMob(false, host.Vec3{X: -2})
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != EnableAI {
		t.Fatalf("got %v, want EnableAI (behind-safe-radius mobs must stay/become aware)", got)
	}
}

func TestAwareMobBehindSafeRadiusNeverDisabled(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	mob := mkMob(true, host.Vec3{X: -2})
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != NoChange {
		t.Fatalf("got %v, want NoChange (already aware, must remain so)", got)
	}
}

func TestMobOutsideFOVAndSafeRadiusIsDisabled(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	// Directly behind the player, beyond the safe radius, outside a 90 deg FOV.
	mob := mkMob(true, host.Vec3{X: -10})
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != DisableAI {
		t.Fatalf("got %v, want DisableAI", got)
	}
}

func TestMobInFieldOfViewStaysAware(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	mob := mkMob(false, host.Vec3{X: 10})
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != EnableAI {
		t.Fatalf("got %v, want EnableAI", got)
	}
}

func TestProtectedTypeNeverChanges(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4, ProtectedTypeKeys: map[string]bool{"wolf": true}}
	mob := mkMob(false, host.Vec3{X: 10})
	mob.TypeKey = "wolf"
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != NoChange {
		t.Fatalf("got %v, want NoChange for protected type", got)
	}
}

func TestNamedOrTamedMobNeverChanges(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	mob := mkMob(false, host.Vec3{X: 10})
	mob.Caps.Attrs.Tamed = true
	players := []host.PlayerRef{{Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != NoChange {
		t.Fatalf("got %v, want NoChange for tamed mob", got)
	}
}

func TestDifferentWorldIgnored(t *testing.T) {
	cfg := Config{ActiveRadius: 32, FOVDegrees: 90, BehindSafeRadius: 4}
	mob := mkMob(true, host.Vec3{X: -2})
	mob.World = uuid.New()
	players := []host.PlayerRef{{World: uuid.New(), Pos: host.Vec3{}, Look: host.Vec3{X: 1}}}

	if got := Evaluate(cfg, mob, players); got != NoChange {
		t.Fatalf("got %v, want NoChange when no player shares the mob's world", got)
	}
}
