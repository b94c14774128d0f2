// Package config defines the guardian's runtime configuration, following
// the teacher's server/conf.go split between a serialisable UserConfig
// (loaded from TOML via github.com/pelletier/go-toml, as server/whitelist.go
// also does) and a programmatic Config consumed by the rest of the guardian.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml"
)

// Config is the fully resolved, programmatic configuration consumed by the
// guardian core. It mirrors spec.md §6's configuration key groups.
type Config struct {
	Log *slog.Logger

	WorkloadLimitMs int

	Predictive PredictiveConfig
	Redstone   RedstoneConfig
	WorldGuard WorldGuardConfig
	ViewDistance ReductionConfig
	SimDistance  ReductionConfig
	MobAI        MobAIConfig
	EntityLimits EntityLimitsConfig
	ChunkLimiter ChunkLimiterConfig
	TPSMonitor   TPSMonitorConfig
	TickMonitor  TickMonitorConfig
	GCMonitor    GCMonitorConfig
	MemoryLeak   MemoryLeakConfig
	Thresholds   []ThresholdConfig
	TriggerCount int
	Recovery     RecoveryConfig
}

type PredictiveConfig struct {
	Enabled        bool
	SlopeThreshold float64
	MsptBaseline   float64
	WindowSeconds  int
	CooldownSeconds int
	Notify         bool
	Actions        []string
}

type RedstoneConfig struct {
	Enabled                bool
	MaxActivationsPerChunk int     `toml:"max-activations-per-chunk"`
	WindowSeconds          int     `toml:"window-seconds"`
	CooldownSeconds        int     `toml:"cooldown-seconds"`
	Notify                 bool
	AdaptiveMonitoring     bool    `toml:"adaptive-monitoring"`
	MinTPS                 float64 `toml:"min-tps"`
}

type WorldGuardConfig struct {
	Enabled            bool
	CheckInterval      int     `toml:"check-interval"`
	OverloadMultiplier float64 `toml:"overload-multiplier"`
	MaxChunksPerPlayer int     `toml:"max-chunks-per-player"`
	MaxRetries         int     `toml:"max-retries"`
	EvacuateWorld      string  `toml:"evacuate-world"`
	Notify             bool
	Actions            []string
}

type ReductionConfig struct {
	Min      int
	ReduceBy int `toml:"reduce-by"`
}

type MobAIConfig struct {
	Enabled         bool
	ActiveRadius    float64
	FOVDegrees      float64
	BehindSafeRadius float64
	UpdateInterval  int
	Protected       []string
}

type EntityLimitsConfig struct {
	Enabled            bool
	CheckInterval      int
	PerChunkLimit      map[string]int
	PerWorldLimit      map[string]int
	PerWorldDefault    int
	ProtectedMetadata  []string
	ProtectedNames     []string
}

type ChunkLimiterConfig struct {
	Enabled            bool
	MaxEntitiesPerChunk int
	ScanInterval        int
	Whitelist           []string
}

type TPSMonitorConfig struct {
	CheckInterval int
}

type TickMonitorConfig struct {
	Enabled     bool
	ThresholdMs int
	Notify      bool
}

type GCMonitorConfig struct {
	Enabled       bool
	MinDurationMs float64
	Notify        bool
}

type MemoryLeakConfig struct {
	Enabled              bool
	CheckInterval        int
	WindowSize           int
	SlopeThresholdMBPerMin float64
	MinSamples           int
	AlertCooldown        int
	Notify               bool
}

type ThresholdConfig struct {
	Name             string
	TPS              float64
	Enabled          bool
	Priority         int
	Message          string
	Broadcast        bool
	BroadcastMessage string
	Actions          []string
	Commands         []string
	NotifyChat       bool
	NotifyActionBar  bool
	NotifySound      bool
	SoundType        string
	SoundVolume      float64
	SoundPitch       float64
}

type RecoveryConfig struct {
	Enabled      bool
	TPSThreshold float64
	DelaySeconds float64
}

// UserConfig is the TOML-serialisable configuration a server operator edits
// on disk, following the teacher's server/conf.go UserConfig pattern of
// nested, named sections. Field comments document the defaults produced by
// DefaultConfig.
type UserConfig struct {
	Workload struct {
		LimitMs int
	}
	Automation struct {
		TriggerCount int
		PredictiveOptimization struct {
			Enabled         bool
			SlopeThreshold  float64
			MsptBaseline    float64
			WindowSeconds   int
			Cooldown        int
			Notify          bool
			Actions         []string
		}
	}
	Modules struct {
		Redstone RedstoneConfig `toml:"redstone"`
		Chunks   struct {
			WorldGuard WorldGuardConfig `toml:"world-guard"`
			ViewDistance ReductionConfig `toml:"view-distance"`
			SimulationDistance ReductionConfig `toml:"simulation-distance"`
		}
		MobAI struct {
			Enabled          bool
			ActiveRadius     float64
			FOVDegrees       float64
			BehindSafeRadius float64
			UpdateInterval   int
			Protected        []string
		} `toml:"mob-ai"`
		Entities struct {
			Limits struct {
				Enabled           bool
				CheckInterval     int
				PerChunkLimit     map[string]int `toml:"per-chunk-limit"`
				PerWorldLimit     map[string]int `toml:"per-world-limit"`
				ProtectedMetadata []string        `toml:"protected-metadata"`
				ProtectedNames    []string        `toml:"protected-names"`
			}
			ChunkLimiter struct {
				Enabled             bool
				MaxEntitiesPerChunk int `toml:"max-entities-per-chunk"`
				ScanInterval        int `toml:"scan-interval"`
				Whitelist           []string
			} `toml:"chunk-limiter"`
		}
	}
	System struct {
		TPSMonitor struct {
			CheckInterval int
		} `toml:"tps-monitor"`
		TickMonitor struct {
			Enabled     bool
			ThresholdMs int `toml:"threshold-ms"`
			Notify      bool
		} `toml:"tick-monitor"`
	}
	GCMonitor struct {
		Enabled       bool
		MinDurationMs float64 `toml:"min-duration-ms"`
		Notify        bool
	} `toml:"gc-monitor"`
	MemoryLeakDetector struct {
		Enabled                bool
		CheckInterval          int
		WindowSize             int     `toml:"window-size"`
		SlopeThresholdMBPerMin float64 `toml:"slope-threshold-mb-per-min"`
		MinSamples             int     `toml:"min-samples"`
		AlertCooldown          int     `toml:"alert-cooldown"`
		Notify                 bool
	} `toml:"memory-leak-detector"`
	Thresholds map[string]ThresholdConfig
	Recovery   RecoveryConfig
}

// DefaultConfig returns a UserConfig with every field filled to the
// guardian's documented defaults.
func DefaultConfig() UserConfig {
	var c UserConfig
	c.Workload.LimitMs = 5
	c.Automation.TriggerCount = 3
	c.Automation.PredictiveOptimization.Enabled = true
	c.Automation.PredictiveOptimization.SlopeThreshold = 2.0
	c.Automation.PredictiveOptimization.MsptBaseline = 50.0
	c.Automation.PredictiveOptimization.WindowSeconds = 60
	c.Automation.PredictiveOptimization.Cooldown = 120
	c.Automation.PredictiveOptimization.Notify = true
	c.Automation.PredictiveOptimization.Actions = []string{"chunk-clean"}

	c.Modules.Redstone.Enabled = true
	c.Modules.Redstone.MaxActivationsPerChunk = 200
	c.Modules.Redstone.WindowSeconds = 2
	c.Modules.Redstone.CooldownSeconds = 10
	c.Modules.Redstone.Notify = true
	c.Modules.Redstone.MinTPS = 18.0

	c.Modules.Chunks.WorldGuard.Enabled = true
	c.Modules.Chunks.WorldGuard.CheckInterval = 200
	c.Modules.Chunks.WorldGuard.OverloadMultiplier = 1.0
	c.Modules.Chunks.WorldGuard.MaxChunksPerPlayer = 0
	c.Modules.Chunks.WorldGuard.MaxRetries = 3
	c.Modules.Chunks.WorldGuard.EvacuateWorld = ""
	c.Modules.Chunks.WorldGuard.Notify = true

	c.Modules.Chunks.ViewDistance.Min = 4
	c.Modules.Chunks.ViewDistance.ReduceBy = 2
	c.Modules.Chunks.SimulationDistance.Min = 4
	c.Modules.Chunks.SimulationDistance.ReduceBy = 2

	c.Modules.MobAI.Enabled = true
	c.Modules.MobAI.ActiveRadius = 48
	c.Modules.MobAI.FOVDegrees = 110
	c.Modules.MobAI.BehindSafeRadius = 6
	c.Modules.MobAI.UpdateInterval = 20

	c.Modules.Entities.Limits.Enabled = true
	c.Modules.Entities.Limits.CheckInterval = 200
	c.Modules.Entities.ChunkLimiter.Enabled = true
	c.Modules.Entities.ChunkLimiter.MaxEntitiesPerChunk = 100
	c.Modules.Entities.ChunkLimiter.ScanInterval = 100

	c.System.TPSMonitor.CheckInterval = 20
	c.System.TickMonitor.Enabled = true
	c.System.TickMonitor.ThresholdMs = 50
	c.System.TickMonitor.Notify = true

	c.GCMonitor.Enabled = true
	c.GCMonitor.MinDurationMs = 100
	c.GCMonitor.Notify = true

	c.MemoryLeakDetector.Enabled = true
	c.MemoryLeakDetector.CheckInterval = 30
	c.MemoryLeakDetector.WindowSize = 20
	c.MemoryLeakDetector.SlopeThresholdMBPerMin = 10
	c.MemoryLeakDetector.MinSamples = 5
	c.MemoryLeakDetector.AlertCooldown = 600
	c.MemoryLeakDetector.Notify = true

	c.Recovery.Enabled = true
	c.Recovery.TPSThreshold = 19.0
	c.Recovery.DelaySeconds = 60

	c.Thresholds = map[string]ThresholdConfig{
		"mild":     {Name: "mild", TPS: 18.0, Enabled: true, Priority: 1, Actions: []string{"clear-ground-items"}},
		"moderate": {Name: "moderate", TPS: 15.0, Enabled: true, Priority: 1, Actions: []string{"clear-mobs", "reduce-view-distance"}},
		"severe":   {Name: "severe", TPS: 10.0, Enabled: true, Priority: 1, Actions: []string{"unload-world-chunks", "notify-admin"}},
	}
	return c
}

// Config converts a UserConfig into the programmatic Config the guardian
// core consumes.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if log == nil {
		log = slog.Default()
	}
	conf := Config{
		Log:             log,
		WorkloadLimitMs: uc.Workload.LimitMs,
		TriggerCount:    uc.Automation.TriggerCount,
		Predictive: PredictiveConfig{
			Enabled:         uc.Automation.PredictiveOptimization.Enabled,
			SlopeThreshold:  uc.Automation.PredictiveOptimization.SlopeThreshold,
			MsptBaseline:    uc.Automation.PredictiveOptimization.MsptBaseline,
			WindowSeconds:   uc.Automation.PredictiveOptimization.WindowSeconds,
			CooldownSeconds: uc.Automation.PredictiveOptimization.Cooldown,
			Notify:          uc.Automation.PredictiveOptimization.Notify,
			Actions:         uc.Automation.PredictiveOptimization.Actions,
		},
		Redstone:     uc.Modules.Redstone,
		WorldGuard:   uc.Modules.Chunks.WorldGuard,
		ViewDistance: uc.Modules.Chunks.ViewDistance,
		SimDistance:  uc.Modules.Chunks.SimulationDistance,
		MobAI: MobAIConfig{
			Enabled:          uc.Modules.MobAI.Enabled,
			ActiveRadius:     uc.Modules.MobAI.ActiveRadius,
			FOVDegrees:       uc.Modules.MobAI.FOVDegrees,
			BehindSafeRadius: uc.Modules.MobAI.BehindSafeRadius,
			UpdateInterval:   uc.Modules.MobAI.UpdateInterval,
			Protected:        uc.Modules.MobAI.Protected,
		},
		EntityLimits: EntityLimitsConfig{
			Enabled:           uc.Modules.Entities.Limits.Enabled,
			CheckInterval:     uc.Modules.Entities.Limits.CheckInterval,
			PerChunkLimit:     uc.Modules.Entities.Limits.PerChunkLimit,
			PerWorldLimit:     uc.Modules.Entities.Limits.PerWorldLimit,
			ProtectedMetadata: uc.Modules.Entities.Limits.ProtectedMetadata,
			ProtectedNames:    uc.Modules.Entities.Limits.ProtectedNames,
		},
		ChunkLimiter: ChunkLimiterConfig{
			Enabled:             uc.Modules.Entities.ChunkLimiter.Enabled,
			MaxEntitiesPerChunk: uc.Modules.Entities.ChunkLimiter.MaxEntitiesPerChunk,
			ScanInterval:        uc.Modules.Entities.ChunkLimiter.ScanInterval,
			Whitelist:           uc.Modules.Entities.ChunkLimiter.Whitelist,
		},
		TPSMonitor: TPSMonitorConfig{CheckInterval: uc.System.TPSMonitor.CheckInterval},
		TickMonitor: TickMonitorConfig{
			Enabled:     uc.System.TickMonitor.Enabled,
			ThresholdMs: uc.System.TickMonitor.ThresholdMs,
			Notify:      uc.System.TickMonitor.Notify,
		},
		GCMonitor: GCMonitorConfig{
			Enabled:       uc.GCMonitor.Enabled,
			MinDurationMs: uc.GCMonitor.MinDurationMs,
			Notify:        uc.GCMonitor.Notify,
		},
		MemoryLeak: MemoryLeakConfig{
			Enabled:                uc.MemoryLeakDetector.Enabled,
			CheckInterval:          uc.MemoryLeakDetector.CheckInterval,
			WindowSize:             uc.MemoryLeakDetector.WindowSize,
			SlopeThresholdMBPerMin: uc.MemoryLeakDetector.SlopeThresholdMBPerMin,
			MinSamples:             uc.MemoryLeakDetector.MinSamples,
			AlertCooldown:          uc.MemoryLeakDetector.AlertCooldown,
			Notify:                 uc.MemoryLeakDetector.Notify,
		},
		Recovery: uc.Recovery,
	}
	for _, t := range uc.Thresholds {
		if t.Enabled {
			conf.Thresholds = append(conf.Thresholds, t)
		}
	}
	return conf, nil
}

// Load reads a TOML configuration file from path, creating it with
// DefaultConfig's values if it does not yet exist, mirroring the teacher's
// pattern of writing out a usable default config on first run.
func Load(path string) (UserConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		def := DefaultConfig()
		return def, Write(path, def)
	}
	if err != nil {
		return UserConfig{}, fmt.Errorf("read config: %w", err)
	}
	var uc UserConfig
	if err := toml.Unmarshal(data, &uc); err != nil {
		return UserConfig{}, fmt.Errorf("decode config: %w", err)
	}
	return uc, nil
}

// Write serialises uc to path as TOML.
func Write(path string, uc UserConfig) error {
	data, err := toml.Marshal(uc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
