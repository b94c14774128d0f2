// Package guardian wires the adaptive performance-guardian components into a
// single embeddable unit a host game server constructs once and drives from
// its own tick loop. It exposes no command-line or TUI surface by design:
// the host application owns the process and its entry point, and supplies
// its own implementation of host.Adapter and host.Scheduler.
package guardian

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/df-mc/guardian/config"
	"github.com/df-mc/guardian/host"
	"github.com/df-mc/guardian/internal/chunkguard"
	"github.com/df-mc/guardian/internal/chunkkey"
	"github.com/df-mc/guardian/internal/culler"
	"github.com/df-mc/guardian/internal/gcobserver"
	"github.com/df-mc/guardian/internal/laganalyzer"
	"github.com/df-mc/guardian/internal/limiter"
	"github.com/df-mc/guardian/internal/memtrend"
	"github.com/df-mc/guardian/internal/metrics"
	"github.com/df-mc/guardian/internal/predictive"
	"github.com/df-mc/guardian/internal/redstone"
	"github.com/df-mc/guardian/internal/snapshot"
	"github.com/df-mc/guardian/internal/threshold"
	"github.com/df-mc/guardian/internal/workload"
)

// defaultLagThresholds are the Lag-Source Analyzer's classification cutoffs.
// spec.md §6's configuration surface does not expose them; they are an
// internal diagnostic tuning, not an operator-facing control.
var defaultLagThresholds = laganalyzer.Thresholds{
	EntityOverload:  500,
	EntityTypeMinor: 50,
	TopNTypes:       3,
	EntityDensity:   30,
	ChunkWarn:       1000,
	ChunkRatePerSec: 20,
	PluginTaskWarn:  50,
}

// Guardian owns every component described in spec.md §2 and mediates their
// interaction per §2's data flow: TickSampler feeds PredictiveOptimizer and
// ThresholdEngine; both enqueue work into the WorkloadDistributor, the sole
// writer into the host's mutation surface.
type Guardian struct {
	cfg     config.Config
	adapter host.Adapter
	sched   host.Scheduler
	log     *slog.Logger

	Distributor *workload.Distributor
	Sampler     *metrics.TickSampler
	GC          *gcobserver.Observer
	MemTrend    *memtrend.Detector
	Redstone    *redstone.Suppressor
	ChunkGuard  *chunkguard.Guard
	Predictive  *predictive.Optimizer
	Thresholds  *threshold.Engine

	culler        *snapshot.Pipeline[entitySnapshot, host.EntityID, awarenessMutation]
	chunkLimiter  *snapshot.Pipeline[entitySnapshot, host.EntityID, struct{}]
	entityLimiter *snapshot.Pipeline[entitySnapshot, host.EntityID, struct{}]
	density       *snapshot.Pipeline[entitySnapshot, host.EntityID, densityMutation]
	lagAnalyzer   *snapshot.Pipeline[entitySnapshot, string, string]

	// origViewDistance and origSimDistance record a world's distance the
	// first time a threshold action reduces it, so RestoreDefaults can
	// revert to the exact value rather than a guessed default.
	origViewDistance map[uuid.UUID]int
	origSimDistance  map[uuid.UUID]int

	cancels []func()

	// lastPredictiveSample and ticksSinceCheck pace Tick's once-per-second
	// PredictiveOptimizer feed and its per-check-interval ThresholdEngine check.
	lastPredictiveSample time.Time
	ticksSinceCheck      int
}

// New constructs a Guardian from a resolved Config and the host's Adapter
// and Scheduler implementations.
func New(cfg config.Config, adapter host.Adapter, sched host.Scheduler) *Guardian {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	dist := workload.New(workload.Config{
		BudgetNanos: int64(time.Duration(cfg.WorkloadLimitMs) * time.Millisecond),
		Scheduler:   sched,
		Log:         log,
	})
	sampler := metrics.NewTickSampler()

	g := &Guardian{
		cfg:              cfg,
		adapter:          adapter,
		sched:            sched,
		log:              log,
		Distributor:      dist,
		Sampler:          sampler,
		origViewDistance: make(map[uuid.UUID]int),
		origSimDistance:  make(map[uuid.UUID]int),
	}

	if cfg.GCMonitor.Enabled {
		g.GC = gcobserver.New(gcobserver.Config{
			MinDurationMs: cfg.GCMonitor.MinDurationMs,
			Notify:        cfg.GCMonitor.Notify,
			Log:           log,
			OnClassified: func(name, classification string, avgPauseMs float64) {
				adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&e"+classification+" GC pause elevated")
			},
		})
	}

	if cfg.MemoryLeak.Enabled {
		g.MemTrend = memtrend.New(memtrend.Config{
			CheckInterval:          time.Duration(cfg.MemoryLeak.CheckInterval) * time.Second,
			WindowSize:             cfg.MemoryLeak.WindowSize,
			MinSamples:             cfg.MemoryLeak.MinSamples,
			SlopeThresholdMBPerMin: cfg.MemoryLeak.SlopeThresholdMBPerMin,
			AlertCooldown:          time.Duration(cfg.MemoryLeak.AlertCooldown) * time.Second,
			Notify:                 cfg.MemoryLeak.Notify,
			Log:                    log,
			OnAlert: func(slope float64, consecutive int) {
				adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&cmemory leak suspected")
			},
		})
	}

	if cfg.Redstone.Enabled {
		g.Redstone = redstone.New(redstone.Config{
			MaxActivationsPerChunk: cfg.Redstone.MaxActivationsPerChunk,
			WindowSeconds:          cfg.Redstone.WindowSeconds,
			CooldownSeconds:        cfg.Redstone.CooldownSeconds,
			Notify:                 cfg.Redstone.Notify,
			Log:                    log,
			NotifyFn: func(key chunkkey.Key) {
				adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&credstone activity suppressed at "+key.String())
			},
		})
	}

	if cfg.WorldGuard.Enabled {
		evacuateID, err := uuid.Parse(cfg.WorldGuard.EvacuateWorld)
		if err != nil {
			evacuateID = uuid.Nil
		}
		g.ChunkGuard = chunkguard.New(chunkguard.Config{
			OverloadMultiplier: cfg.WorldGuard.OverloadMultiplier,
			ChunksPerPlayer:    cfg.WorldGuard.MaxChunksPerPlayer,
			MaxRetries:         cfg.WorldGuard.MaxRetries,
			EvacuateWorld:      evacuateID,
			Notify:             cfg.WorldGuard.Notify,
			Adapter:            adapter,
			Dist:               dist,
			Scheduler:          sched,
			Log:                log,
		})
	}

	if cfg.Predictive.Enabled {
		g.Predictive = predictive.New(predictive.Config{
			WindowSeconds:   cfg.Predictive.WindowSeconds,
			MsptBaselineMs:  cfg.Predictive.MsptBaseline,
			SlopeThreshold:  cfg.Predictive.SlopeThreshold,
			CooldownSeconds: cfg.Predictive.CooldownSeconds,
			Log:             log,
			// Trigger only notifies admins; cfg.Predictive.Actions is not run.
			Trigger: func(reason string) {
				if cfg.Predictive.Notify {
					adapter.Notify(host.AudienceAdmins, host.ChannelChat, "&epredictive optimizer triggered: "+reason)
				}
			},
		})
	}

	if cfg.MobAI.Enabled {
		protected := make(map[string]bool, len(cfg.MobAI.Protected))
		for _, t := range cfg.MobAI.Protected {
			protected[t] = true
		}
		g.culler = newCullerPipeline(culler.Config{
			ActiveRadius:      cfg.MobAI.ActiveRadius,
			FOVDegrees:        cfg.MobAI.FOVDegrees,
			BehindSafeRadius:  cfg.MobAI.BehindSafeRadius,
			ProtectedTypeKeys: protected,
		}, ticksToDuration(cfg.MobAI.UpdateInterval), adapter, sched, host.SystemClock{}, dist)
	}

	if cfg.ChunkLimiter.Enabled {
		whitelist := make(map[string]bool, len(cfg.ChunkLimiter.Whitelist))
		for _, t := range cfg.ChunkLimiter.Whitelist {
			whitelist[t] = true
		}
		g.chunkLimiter = newChunkLimiterPipeline(limiter.ChunkLimiterConfig{
			MaxEntitiesPerChunk: cfg.ChunkLimiter.MaxEntitiesPerChunk,
			Whitelist:           whitelist,
		}, ticksToDuration(cfg.ChunkLimiter.ScanInterval), adapter, sched, host.SystemClock{}, dist)
	}

	if cfg.EntityLimits.Enabled {
		interval := ticksToDuration(cfg.EntityLimits.CheckInterval)
		g.entityLimiter = newEntityLimiterPipeline(limiter.LimitTable{
			PerType: cfg.EntityLimits.PerWorldLimit,
			Default: cfg.EntityLimits.PerWorldDefault,
		}, interval, adapter, sched, host.SystemClock{}, dist)

		g.density = newDensityPipeline(limiter.DensityConfig{
			LimitPerType:   cfg.EntityLimits.PerChunkLimit,
			BypassShielded: true,
		}, interval, adapter, sched, host.SystemClock{}, dist)
	}

	g.lagAnalyzer = newLagAnalyzerPipeline(defaultLagThresholds, adapter, sched, host.SystemClock{}, dist)

	g.Thresholds = g.buildThresholdEngine(cfg, log)

	return g
}

func (g *Guardian) buildThresholdEngine(cfg config.Config, log *slog.Logger) *threshold.Engine {
	levels := make([]threshold.Level, 0, len(cfg.Thresholds))
	for _, t := range cfg.Thresholds {
		actions := make([]threshold.Action, 0, len(t.Actions))
		for _, a := range t.Actions {
			actions = append(actions, threshold.Action(a))
		}
		levels = append(levels, threshold.Level{
			Name:         t.Name,
			TPS:          t.TPS,
			Priority:     t.Priority,
			Actions:      actions,
			Commands:     t.Commands,
			Message:      t.Message,
			Broadcast:    t.Broadcast,
			BroadcastMsg: t.BroadcastMessage,
			NotifyChat:   t.NotifyChat,
		})
	}
	return threshold.New(threshold.Config{
		Levels:             levels,
		TriggerCount:       cfg.TriggerCount,
		CheckIntervalTicks: cfg.TPSMonitor.CheckInterval,
		Recovery: threshold.RecoveryConfig{
			Enabled:      cfg.Recovery.Enabled,
			TPSThreshold: cfg.Recovery.TPSThreshold,
			DelaySeconds: cfg.Recovery.DelaySeconds,
		},
		Caps: g.capabilities(),
		Log:  log,
	})
}

// Start begins every component's daemon timers. It must be called once
// after New.
func (g *Guardian) Start() {
	if g.GC != nil {
		g.cancels = append(g.cancels, g.GC.Start(g.sched, host.SystemClock{}))
	}
	if g.MemTrend != nil {
		g.cancels = append(g.cancels, g.MemTrend.Start(g.sched, host.SystemClock{}))
	}
	if g.culler != nil {
		g.cancels = append(g.cancels, g.culler.Start())
	}
	if g.chunkLimiter != nil {
		g.cancels = append(g.cancels, g.chunkLimiter.Start())
	}
	if g.entityLimiter != nil {
		g.cancels = append(g.cancels, g.entityLimiter.Start())
	}
	if g.density != nil {
		g.cancels = append(g.cancels, g.density.Start())
	}
	if g.lagAnalyzer != nil {
		g.cancels = append(g.cancels, g.lagAnalyzer.Start())
	}
	if g.ChunkGuard != nil {
		period := ticksToDuration(g.cfg.WorldGuard.CheckInterval)
		g.cancels = append(g.cancels, g.sched.TimerMain(period, g.runWorldGuardCycle))
	}
	if g.Redstone != nil {
		period := time.Duration(g.cfg.Redstone.WindowSeconds) * time.Second
		g.cancels = append(g.cancels, g.sched.DaemonTimer(period, g.Redstone.Cleanup))
	}
}

// ticksPerSecond is the server tick rate every tick-denominated config value
// (spec.md §6's check-interval keys) is expressed against.
const ticksPerSecond = 20

func ticksToDuration(ticks int) time.Duration {
	return time.Duration(ticks) * time.Second / ticksPerSecond
}

func (g *Guardian) runWorldGuardCycle() {
	for _, w := range g.adapter.Worlds() {
		g.ChunkGuard.Evaluate(w, g.adapter.LoadedChunks(w.ID), g.adapter.Players(w.ID))
	}
}

// Stop cancels every daemon timer started by Start.
func (g *Guardian) Stop() {
	for _, c := range g.cancels {
		c()
	}
	g.cancels = nil
}

// Tick is called once per main-thread tick by the host. It feeds the
// TickSampler, drains the WorkloadDistributor, feeds the PredictiveOptimizer
// once per second of elapsed wall time, and runs a ThresholdEngine check once
// every TPSMonitor.CheckInterval ticks.
func (g *Guardian) Tick(now time.Time) {
	g.Sampler.RecordTick(now)
	g.Distributor.RunTick()

	if g.Predictive != nil && now.Sub(g.lastPredictiveSample) >= time.Second {
		g.lastPredictiveSample = now
		avg, _, _ := g.Sampler.MSPT()
		g.Predictive.Sample(now, float64(avg.Microseconds())/1000)
	}

	interval := g.cfg.TPSMonitor.CheckInterval
	if interval <= 0 {
		interval = ticksPerSecond
	}
	g.ticksSinceCheck++
	if g.ticksSinceCheck >= interval {
		g.ticksSinceCheck = 0
		g.Thresholds.Check(g.Sampler.TPS())
	}
}
