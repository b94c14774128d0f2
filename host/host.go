// Package host defines the abstract boundary between the guardian core and
// the game server it protects. Nothing in this package talks to a concrete
// game engine; every method here is a collaborator interface that the host
// application implements.
package host

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind is a tagged variant over the host's entity class hierarchy. The
// core never switches on a concrete host type; it only ever inspects the
// Kind and Attributes of an entity snapshot.
type EntityKind uint8

const (
	KindUnknown EntityKind = iota
	KindItem
	KindExperienceOrb
	KindMonster
	KindPassive
	KindArmorStand
	KindVillager
	KindTameable
	KindMobGeneric
)

// Attributes carries the boolean facts about an entity that the core's
// protection and ranking rules depend on.
type Attributes struct {
	Named      bool
	Tamed      bool
	Leashed    bool
	Mounted    bool
	Collidable bool
	Aware      bool
}

// Capabilities is the tagged-variant projection over a host entity described
// in spec.md §9: a Kind plus an attribute bundle. Core code switches on Kind
// and Attributes, never on a host-specific Go type.
type Capabilities struct {
	Kind  EntityKind
	Attrs Attributes
}

// EntityID identifies an entity stably across a snapshot→analyze→dispatch
// cycle, even though the entity's concrete host object may be reloaded.
type EntityID uint64

// EntityRef is an immutable, thread-free snapshot of a single entity as
// observed at snapshot time. Scanners only ever read EntityRef values off the
// main thread; the live host object is never touched there.
type EntityRef struct {
	ID      EntityID
	World   uuid.UUID
	Pos     Vec3
	Caps    Capabilities
	TypeKey string
}

// Vec3 is a plain three-component vector, free of any host math library
// dependency so snapshots remain thread-free value types.
type Vec3 struct{ X, Y, Z float64 }

// PlayerRef is an immutable snapshot of a player's position and view
// direction, used by the frustum culler and the population limiters.
type PlayerRef struct {
	ID     EntityID
	World  uuid.UUID
	Pos    Vec3
	Look   Vec3
	ChunkX int32
	ChunkZ int32
}

// ChunkPos addresses a chunk column within a single world.
type ChunkPos struct{ X, Z int32 }

// WorldRef identifies a loaded world and its static configuration at
// snapshot time.
type WorldRef struct {
	ID                 uuid.UUID
	Name               string
	ViewDistance       int
	SimulationDistance int
	HasSimDistance     bool
	LoadedChunks       int
	PlayerCount        int
}

// UnloadMode selects whether an unloaded chunk or world persists its changes.
type UnloadMode uint8

const (
	UnloadSave UnloadMode = iota
	UnloadNoSave
)

// MutationOutcome distinguishes a successful mutation from a retryable
// failure (the target was already gone) or a fatal refusal (the host will
// never honour the request, e.g. unloading the default world).
type MutationOutcome uint8

const (
	MutationOK MutationOutcome = iota
	MutationRetryable
	MutationRefused
)

// Adapter is the full boundary through which the guardian core reads world
// and entity state and mutates the simulation. Every method except Notify is
// called from the main thread only; the core never calls those from a worker
// or daemon goroutine, since Adapter is the host's exclusive write surface
// (spec.md §5). Notify is also called from daemon goroutines, for the GC and
// memory-leak alerts.
type Adapter interface {
	// Worlds enumerates the worlds currently loaded by the host.
	Worlds() []WorldRef
	// LoadedChunks enumerates the positions of chunks currently resident in
	// memory for the world identified by id.
	LoadedChunks(world uuid.UUID) []ChunkPos
	// EntitiesInChunk enumerates entities located in the given chunk.
	EntitiesInChunk(world uuid.UUID, pos ChunkPos) []EntityRef
	// EntitiesNear enumerates non-player entities within radius blocks of
	// the given player.
	EntitiesNear(player EntityID, radiusBlocks float64) []EntityRef
	// Players enumerates the players currently connected to the world.
	Players(world uuid.UUID) []PlayerRef

	// RemoveEntity removes the entity if it is still valid. A MutationRetryable
	// result means the entity had already been removed or unloaded.
	RemoveEntity(id EntityID) MutationOutcome
	// SetEntityAware toggles whether the entity's AI should run.
	SetEntityAware(id EntityID, aware bool) MutationOutcome
	// SetEntityCollidable toggles whether the entity participates in
	// collision detection.
	SetEntityCollidable(id EntityID, collidable bool) MutationOutcome
	// SetViewDistance sets a world's view distance in chunks.
	SetViewDistance(world uuid.UUID, chunks int) MutationOutcome
	// SetSimulationDistance sets a world's simulation distance in chunks. It
	// returns MutationRefused if the host lacks the capability; callers must
	// check SupportsSimulationDistance first.
	SetSimulationDistance(world uuid.UUID, chunks int) MutationOutcome
	// SupportsSimulationDistance reports whether the host exposes a
	// simulation-distance control, determined once at start-up (spec.md §9).
	SupportsSimulationDistance() bool
	// UnloadChunk unloads a single chunk column.
	UnloadChunk(world uuid.UUID, pos ChunkPos, mode UnloadMode) MutationOutcome
	// UnloadWorld unloads an entire world. Returns MutationRefused for
	// worlds the host will never unload (e.g. the default world).
	UnloadWorld(world uuid.UUID, mode UnloadMode) MutationOutcome
	// TeleportPlayers moves every player in fromWorld to the spawn point of
	// toWorld (or another host-selected fallback world if toWorld is the
	// nil UUID).
	TeleportPlayers(fromWorld, toWorld uuid.UUID) MutationOutcome
	// DispatchCommand runs a server console command synchronously.
	DispatchCommand(command string) error

	// Notify sends a legacy colour-coded ('&' + single char) message to the
	// given channel. The host owns formatting and localisation.
	Notify(audience Audience, channel NotifyChannel, message string)
}

// Audience selects who should receive a notification.
type Audience uint8

const (
	AudienceAdmins Audience = iota
	AudienceAll
)

// NotifyChannel selects the presentation surface for a notification.
type NotifyChannel uint8

const (
	ChannelChat NotifyChannel = iota
	ChannelActionBar
	ChannelSound
)

// Scheduler is the abstract task-scheduling surface every guardian component
// receives from its owning context, per spec.md §9. It replaces direct
// dependence on a concrete threading runtime.
type Scheduler interface {
	// OnMain runs task once on the main thread, as soon as the main loop is
	// next free to do so.
	OnMain(task func())
	// TimerMain repeats task on the main thread every period until the
	// returned cancel function is called.
	TimerMain(period time.Duration, task func()) (cancel func())
	// OnWorker runs task once on one of a small fixed pool of worker
	// goroutines.
	OnWorker(task func())
	// DaemonTimer repeats task on an independent daemon goroutine every
	// period, until the returned cancel function is called. Daemon tasks
	// must never call Adapter's mutation methods.
	DaemonTimer(period time.Duration, task func()) (cancel func())
}

// Clock abstracts wall-clock and monotonic time so components can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
