// Package threshold implements spec.md §4.11's ThresholdEngine: matches live
// TPS against configured levels, fires the closed action set through the
// distributor, and supervises hysteretic recovery back to defaults.
// Grounded on the teacher's server/world/redstone state-machine style
// (count-then-promote hysteresis) and on conf.go's sorted, validated
// configuration loading pattern.
package threshold

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/df-mc/guardian/host"
)

// Action is one member of spec.md §4.11's closed action set.
type Action string

const (
	ActionClearGroundItems       Action = "clear-ground-items"
	ActionClearXPOrbs            Action = "clear-xp-orbs"
	ActionClearMobs              Action = "clear-mobs"
	ActionKillHostileMobs        Action = "kill-hostile-mobs"
	ActionReduceViewDistance     Action = "reduce-view-distance"
	ActionReduceSimulationDist   Action = "reduce-simulation-distance"
	ActionDisableMobAI           Action = "disable-mob-ai"
	ActionForceGC                Action = "force-gc"
	ActionChunkClean             Action = "chunk-clean"
	ActionEnforceEntityLimits    Action = "enforce-entity-limits"
	ActionUnloadWorldChunks      Action = "unload-world-chunks"
	ActionNotifyAdmin            Action = "notify-admin"
)

// Level is one configured threshold (spec.md §3's ThresholdLevel).
type Level struct {
	Name            string
	TPS             float64
	Priority        int
	Actions         []Action
	Commands        []string
	NotifyChat      bool
	NotifyActionBar bool
	NotifySound     bool
	Message         string
	Broadcast       bool
	BroadcastMsg    string
}

// SortLevels orders levels by TPS descending, priority descending, per
// spec.md §3 and the §8 ordering invariant.
func SortLevels(levels []Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].TPS != levels[j].TPS {
			return levels[i].TPS > levels[j].TPS
		}
		return levels[i].Priority > levels[j].Priority
	})
}

// Capabilities is the set of collaborator closures the action executor calls
// into, per spec.md §9's cycle-breaking design: ThresholdEngine depends on
// function references rather than back-pointers into WorldChunkGuard or the
// population limiters.
type Capabilities struct {
	ClearGroundItems    func()
	ClearXPOrbs         func()
	ClearMobs           func()
	KillHostileMobs     func()
	ReduceViewDistance  func()
	ReduceSimDistance   func()
	DisableMobAI        func()
	ChunkClean          func()
	EnforceEntityLimits func()
	UnloadWorldChunks   func()
	NotifyAdmin         func(message string)
	RestoreDefaults     func()
	RequestLagAnalysis  func()
}

// Config holds the engine's tunables (spec.md §6:
// automation.trigger-count; recovery.{enabled,tps-threshold,delay-seconds}).
type Config struct {
	Levels              []Level
	TriggerCount        int
	CheckIntervalTicks  int
	AutoAnalyzeCutoff   float64
	Recovery            RecoveryConfig
	NotificationCooldown time.Duration
	Caps                Capabilities
	Clock               host.Clock
	Log                 *slog.Logger
}

// RecoveryConfig holds spec.md §4.11's recovery tunables.
type RecoveryConfig struct {
	Enabled       bool
	TPSThreshold  float64
	DelaySeconds  float64
}

func (c *Config) withDefaults() {
	if c.TriggerCount <= 0 {
		c.TriggerCount = 3
	}
	if c.CheckIntervalTicks <= 0 {
		c.CheckIntervalTicks = 20
	}
	if c.Clock == nil {
		c.Clock = host.SystemClock{}
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	SortLevels(c.Levels)
}

// State is the engine's process-wide mutable state (spec.md §3's
// ThresholdState).
type State struct {
	Active            *Level
	ConsecutiveLow    int
	ConsecutiveGood   int
	SettingsModified  bool
}

// requiredConsecutiveGood computes spec.md §4.11's
// `ceil(delay-seconds · 20 / check-interval-ticks)`.
func (c Config) requiredConsecutiveGood() int {
	if c.CheckIntervalTicks <= 0 {
		return 1
	}
	n := math.Ceil(c.Recovery.DelaySeconds * 20 / float64(c.CheckIntervalTicks))
	if n < 1 {
		n = 1
	}
	return int(n)
}

// Engine drives the threshold state machine.
type Engine struct {
	cfg   Config
	state State

	lastNotify time.Time
	dedup      map[uint64]time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	cfg.withDefaults()
	return &Engine{cfg: cfg, dedup: make(map[uint64]time.Time)}
}

// State returns a copy of the engine's current state, for diagnostics.
func (e *Engine) State() State { return e.state }

// Check runs one evaluation cycle against the current TPS, per spec.md
// §4.11's per-check-interval algorithm.
func (e *Engine) Check(tps float64) {
	match := e.matchLevel(tps)
	if match != nil {
		e.state.ConsecutiveLow++
		e.state.ConsecutiveGood = 0
		if e.state.ConsecutiveLow >= e.cfg.TriggerCount {
			e.promote(match)
		}
		if tps < e.cfg.AutoAnalyzeCutoff && e.cfg.Caps.RequestLagAnalysis != nil {
			e.cfg.Caps.RequestLagAnalysis()
		}
		return
	}

	e.state.ConsecutiveLow = 0
	e.runRecovery(tps)
}

// matchLevel returns the most severe level whose TPS cutoff the current TPS
// is at or below: the last level in the TPS-descending list whose TPS ≥
// current TPS (spec.md §4.11).
func (e *Engine) matchLevel(tps float64) *Level {
	var match *Level
	for i := range e.cfg.Levels {
		lvl := &e.cfg.Levels[i]
		if tps <= lvl.TPS {
			match = lvl
		}
	}
	return match
}

// stricter reports whether candidate is a more severe level than current
// (lower TPS cutoff, or same TPS with higher priority): severity is the
// level's list position under the sorted (TPS desc, priority desc) order, so
// a later list position is stricter.
func (e *Engine) stricter(candidate, current *Level) bool {
	ci, ii := e.indexOf(candidate), e.indexOf(current)
	return ci > ii
}

func (e *Engine) indexOf(l *Level) int {
	for i := range e.cfg.Levels {
		if &e.cfg.Levels[i] == l {
			return i
		}
	}
	return -1
}

func (e *Engine) promote(match *Level) {
	if e.state.Active != nil && !e.stricter(match, e.state.Active) {
		return
	}
	e.state.Active = match
	e.state.SettingsModified = true
	e.executeActions(match)
	e.notify(match)
}

func (e *Engine) executeActions(l *Level) {
	now := e.cfg.Clock.Now()
	for _, a := range l.Actions {
		key := fnv1a.HashString64(l.Name + ":" + string(a))
		if last, ok := e.dedup[key]; ok && now.Sub(last) < time.Second {
			continue
		}
		e.dedup[key] = now
		e.runAction(a)
	}
	for _, cmd := range l.Commands {
		_ = cmd // Level.Commands are not dispatched: the engine runs only the closed action set.
	}
}

func (e *Engine) runAction(a Action) {
	c := e.cfg.Caps
	switch a {
	case ActionClearGroundItems:
		call(c.ClearGroundItems)
	case ActionClearXPOrbs:
		call(c.ClearXPOrbs)
	case ActionClearMobs:
		call(c.ClearMobs)
	case ActionKillHostileMobs:
		call(c.KillHostileMobs)
	case ActionReduceViewDistance:
		call(c.ReduceViewDistance)
	case ActionReduceSimulationDist:
		call(c.ReduceSimDistance)
	case ActionDisableMobAI:
		call(c.DisableMobAI)
	case ActionForceGC:
		// No-op by policy: never calls the runtime's explicit collection
		// (spec.md §4.11).
	case ActionChunkClean:
		call(c.ChunkClean)
	case ActionEnforceEntityLimits:
		call(c.EnforceEntityLimits)
	case ActionUnloadWorldChunks:
		call(c.UnloadWorldChunks)
	case ActionNotifyAdmin:
		if c.NotifyAdmin != nil {
			c.NotifyAdmin("threshold action triggered")
		}
	}
}

func call(f func()) {
	if f != nil {
		f()
	}
}

func (e *Engine) notify(l *Level) {
	now := e.cfg.Clock.Now()
	if e.cfg.NotificationCooldown > 0 && now.Sub(e.lastNotify) < e.cfg.NotificationCooldown {
		return
	}
	e.lastNotify = now
	if e.cfg.Caps.NotifyAdmin != nil {
		msg := l.Message
		if msg == "" {
			msg = l.Name + " threshold active"
		}
		e.cfg.Caps.NotifyAdmin(msg)
	}
}

func (e *Engine) runRecovery(tps float64) {
	if !e.state.SettingsModified || !e.cfg.Recovery.Enabled {
		e.state.ConsecutiveGood = 0
		return
	}
	if tps < e.cfg.Recovery.TPSThreshold {
		e.state.ConsecutiveGood = 0
		return
	}
	e.state.ConsecutiveGood++
	if e.state.ConsecutiveGood < e.cfg.requiredConsecutiveGood() {
		return
	}
	if e.cfg.Caps.RestoreDefaults != nil {
		e.cfg.Caps.RestoreDefaults()
	}
	e.state.SettingsModified = false
	e.state.Active = nil
	e.state.ConsecutiveGood = 0
}
