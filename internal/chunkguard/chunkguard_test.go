package chunkguard

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/workload"
)

// fakeAdapter records mutation calls for assertions; only the methods the
// guard actually calls need real behaviour.
type fakeAdapter struct {
	unloadedChunks []host.ChunkPos
	unloadedWorld  bool
	teleported     bool
	notified       []string
	refuseUnloadWorld bool
	loadedChunks      []host.ChunkPos
}

func (f *fakeAdapter) Worlds() []host.WorldRef                          { return nil }
func (f *fakeAdapter) LoadedChunks(uuid.UUID) []host.ChunkPos           { return f.loadedChunks }
func (f *fakeAdapter) EntitiesInChunk(uuid.UUID, host.ChunkPos) []host.EntityRef { return nil }
func (f *fakeAdapter) EntitiesNear(host.EntityID, float64) []host.EntityRef      { return nil }
func (f *fakeAdapter) Players(uuid.UUID) []host.PlayerRef               { return nil }
func (f *fakeAdapter) RemoveEntity(host.EntityID) host.MutationOutcome  { return host.MutationOK }
func (f *fakeAdapter) SetEntityAware(host.EntityID, bool) host.MutationOutcome       { return host.MutationOK }
func (f *fakeAdapter) SetEntityCollidable(host.EntityID, bool) host.MutationOutcome  { return host.MutationOK }
func (f *fakeAdapter) SetViewDistance(uuid.UUID, int) host.MutationOutcome           { return host.MutationOK }
func (f *fakeAdapter) SetSimulationDistance(uuid.UUID, int) host.MutationOutcome     { return host.MutationOK }
func (f *fakeAdapter) SupportsSimulationDistance() bool                             { return true }
func (f *fakeAdapter) UnloadChunk(world uuid.UUID, pos host.ChunkPos, mode host.UnloadMode) host.MutationOutcome {
	f.unloadedChunks = append(f.unloadedChunks, pos)
	return host.MutationOK
}
func (f *fakeAdapter) UnloadWorld(uuid.UUID, host.UnloadMode) host.MutationOutcome {
	f.unloadedWorld = true
	if f.refuseUnloadWorld {
		return host.MutationRefused
	}
	return host.MutationOK
}
func (f *fakeAdapter) TeleportPlayers(uuid.UUID, uuid.UUID) host.MutationOutcome {
	f.teleported = true
	return host.MutationOK
}
func (f *fakeAdapter) DispatchCommand(string) error { return nil }
func (f *fakeAdapter) Notify(audience host.Audience, channel host.NotifyChannel, message string) {
	f.notified = append(f.notified, message)
}

func drain(dist *workload.Distributor) {
	dist.SetBudget(int64(time.Second))
	for dist.Size() > 0 {
		dist.RunTick()
	}
}

// TestOverloadedWorldUnloadsRankedExcess mirrors spec.md §8 scenario 6.
func TestOverloadedWorldUnloadsRankedExcess(t *testing.T) {
	adapter := &fakeAdapter{}
	dist := workload.New(workload.Config{Capacity: 10000})
	g := New(Config{
		OverloadMultiplier: 1.0,
		MaxRetries:         3,
		ExcludeRadius:      2,
		Adapter:            adapter,
		Dist:               dist,
	})

	world := host.WorldRef{ID: uuid.New(), Name: "world", ViewDistance: 10, LoadedChunks: 1200, PlayerCount: 2}
	if got := g.ExpectedMax(world); got != 882 {
		t.Fatalf("ExpectedMax = %d, want 882", got)
	}
	if !g.Overloaded(world) {
		t.Fatalf("world with 1200 loaded > 882 expected_max should be overloaded")
	}

	players := []host.PlayerRef{{ChunkX: 0, ChunkZ: 0}, {ChunkX: 500, ChunkZ: 500}}
	loaded := make([]host.ChunkPos, 0, 1200)
	// Chunks within the 2-chunk exclude radius of player 1, never unload candidates.
	for _, d := range []host.ChunkPos{{X: 0, Z: 0}, {X: 1, Z: 0}, {X: 0, Z: 1}} {
		loaded = append(loaded, d)
	}
	// Remaining chunks spread far from both players, ranked by descending distance.
	for i := 0; len(loaded) < 1200; i++ {
		loaded = append(loaded, host.ChunkPos{X: int32(100 + i), Z: int32(100 + i)})
	}

	g.Evaluate(world, loaded, players)
	drain(dist)

	if len(adapter.unloadedChunks) != 318 {
		t.Fatalf("unloaded %d chunks, want 318 (1200-882)", len(adapter.unloadedChunks))
	}
	for _, pos := range adapter.unloadedChunks {
		if pos.X == 0 && pos.Z == 0 {
			t.Fatalf("excluded chunk at player position must never be an unload candidate")
		}
	}
	if g.State(world.ID).State != StateOverloaded {
		t.Fatalf("state = %v, want StateOverloaded after first round", g.State(world.ID).State)
	}
	if g.State(world.ID).Retries != 1 {
		t.Fatalf("retries = %d, want 1", g.State(world.ID).Retries)
	}
}

func TestSuccessfulReductionResetsToOkAndNotifies(t *testing.T) {
	adapter := &fakeAdapter{}
	dist := workload.New(workload.Config{Capacity: 100})
	g := New(Config{OverloadMultiplier: 1.0, MaxRetries: 3, Notify: true, Adapter: adapter, Dist: dist})

	world := host.WorldRef{ID: uuid.New(), Name: "world", ViewDistance: 10, LoadedChunks: 1200, PlayerCount: 2}
	g.Evaluate(world, []host.ChunkPos{}, nil)
	drain(dist)
	if g.State(world.ID).State != StateOverloaded {
		t.Fatalf("expected Overloaded after first cycle")
	}

	// Re-measure below threshold: guard resets to Ok and notifies once.
	reduced := host.WorldRef{ID: world.ID, Name: "world", ViewDistance: 10, LoadedChunks: 800, PlayerCount: 2}
	g.Evaluate(reduced, nil, nil)

	if g.State(world.ID).State != StateOk {
		t.Fatalf("state = %v, want StateOk after successful reduction", g.State(world.ID).State)
	}
	if g.State(world.ID).Retries != 0 {
		t.Fatalf("retries = %d, want reset to 0", g.State(world.ID).Retries)
	}
	if len(adapter.notified) != 1 {
		t.Fatalf("notified %d times, want exactly 1", len(adapter.notified))
	}
}

func TestExhaustedRetriesEscalatesToEvacuating(t *testing.T) {
	adapter := &fakeAdapter{}
	dist := workload.New(workload.Config{Capacity: 1000})
	g := New(Config{OverloadMultiplier: 1.0, MaxRetries: 2, EvacuateWorld: uuid.New(), Adapter: adapter, Dist: dist})

	world := host.WorldRef{ID: uuid.New(), Name: "world", ViewDistance: 10, LoadedChunks: 1200, PlayerCount: 2}
	g.Evaluate(world, nil, nil) // retries 0 -> 1
	g.Evaluate(world, nil, nil) // retries 1 -> 2
	g.Evaluate(world, nil, nil) // retries == MaxRetries -> Evacuating
	drain(dist)

	if g.State(world.ID).State != StateEvacuating {
		t.Fatalf("state = %v, want StateEvacuating after exhausting retries", g.State(world.ID).State)
	}
	if !adapter.teleported {
		t.Fatalf("expected players to be teleported during evacuation")
	}
	if !adapter.unloadedWorld {
		t.Fatalf("expected world unload to be attempted during evacuation")
	}
}

func TestDefaultWorldRefusalForcesPerChunkUnload(t *testing.T) {
	adapter := &fakeAdapter{refuseUnloadWorld: true, loadedChunks: []host.ChunkPos{{X: 1, Z: 1}, {X: 2, Z: 2}}}
	dist := workload.New(workload.Config{Capacity: 1000})
	g := New(Config{OverloadMultiplier: 1.0, MaxRetries: 1, EvacuateWorld: uuid.New(), Adapter: adapter, Dist: dist})

	world := host.WorldRef{ID: uuid.New(), Name: "world", ViewDistance: 10, LoadedChunks: 1200, PlayerCount: 2}
	g.Evaluate(world, nil, nil) // retries 0 -> 1
	g.Evaluate(world, nil, nil) // retries == MaxRetries -> Evacuating
	drain(dist)

	if g.State(world.ID).State != StateEvacuating {
		t.Fatalf("state = %v, want StateEvacuating", g.State(world.ID).State)
	}
	if !adapter.unloadedWorld {
		t.Fatalf("expected world unload attempt")
	}
	if len(adapter.unloadedChunks) != 2 {
		t.Fatalf("force-unloaded %d chunks, want 2 (every loaded chunk of the refused world)", len(adapter.unloadedChunks))
	}
}
