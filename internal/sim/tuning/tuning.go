package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is every numeric knob of a simulation run. Loaded from tuning.yaml on top of Defaults().
type Tuning struct {
	World    World    `yaml:"world"`
	Energy   Energy   `yaml:"energy"`
	Agents   Agents   `yaml:"agents"`
	Genetics Genetics `yaml:"genetics"`
	Paths    Paths    `yaml:"paths"`

	// Pacing between ticks; 0 runs as fast as agents answer.
	TickIntervalMs     int `yaml:"tick_interval_ms"`
	MaxTicks           int `yaml:"max_ticks"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
}

type World struct {
	Width         int   `yaml:"width"`
	Height        int   `yaml:"height"`
	Seed          int64 `yaml:"seed"`
	InitialAgents int   `yaml:"initial_agents"`
	MaxAgents     int   `yaml:"max_agents"`
	// Reseed the initial population when everything dies.
	ReseedOnExtinction bool `yaml:"reseed_on_extinction"`
}

type Energy struct {
	InitialMin     float64 `yaml:"initial_min"`
	InitialMax     float64 `yaml:"initial_max"`
	BaseCost       float64 `yaml:"base_cost"`
	PassiveDecay   float64 `yaml:"passive_decay"`
	RestGain       float64 `yaml:"rest_gain"`
	AttackDamage   float64 `yaml:"attack_damage"`
	AttackGain     float64 `yaml:"attack_gain"`
	AttackCost     float64 `yaml:"attack_cost"`
	MoveCost       float64 `yaml:"move_cost"`
	ReplicateCost  float64 `yaml:"replicate_cost"`
	DeadAgentBonus float64 `yaml:"dead_agent_bonus"`
	DeathEpsilon   float64 `yaml:"death_epsilon"`
}

type Agents struct {
	MaxAge            int    `yaml:"max_age"`
	ActTimeoutMs      int    `yaml:"act_timeout_ms"`
	DeadlineSlackMs   int    `yaml:"deadline_slack_ms"`
	ParallelThreshold int    `yaml:"parallel_threshold"`
	MaxParallelism    int    `yaml:"max_parallelism"`
	GracePeriodMs     int    `yaml:"grace_period_ms"`
	TermWaitMs        int    `yaml:"term_wait_ms"`
	CleanupQueueSize  int    `yaml:"cleanup_queue_size"`
	Interpreter       string `yaml:"interpreter"`
}

type Genetics struct {
	// Chance that a replication mutates instead of copying the parent verbatim.
	MutationProbability float64  `yaml:"mutation_probability"`
	LineMutationRate    float64  `yaml:"line_mutation_rate"`
	PersonalityMin      float64  `yaml:"personality_min"`
	PersonalityMax      float64  `yaml:"personality_max"`
	TraitKeys           []string `yaml:"trait_keys"`
	GenomeExt           string   `yaml:"genome_ext"`
}

type Paths struct {
	PoolDir      string `yaml:"pool_dir"`
	SeedDir      string `yaml:"seed_dir"`
	WorkspaceDir string `yaml:"workspace_dir"`
	DataDir      string `yaml:"data_dir"`
}

func Defaults() Tuning {
	return Tuning{
		World: World{
			Width:              50,
			Height:             30,
			Seed:               1337,
			InitialAgents:      20,
			MaxAgents:          200,
			ReseedOnExtinction: true,
		},
		Energy: Energy{
			InitialMin:     10,
			InitialMax:     20,
			BaseCost:       0.2,
			PassiveDecay:   0,
			RestGain:       1.0,
			AttackDamage:   3.0,
			AttackGain:     2.0,
			AttackCost:     0.5,
			MoveCost:       0,
			ReplicateCost:  5.0,
			DeadAgentBonus: 10,
			DeathEpsilon:   0.1,
		},
		Agents: Agents{
			MaxAge:            1000,
			ActTimeoutMs:      500,
			DeadlineSlackMs:   100,
			ParallelThreshold: 8,
			MaxParallelism:    32,
			GracePeriodMs:     200,
			TermWaitMs:        200,
			CleanupQueueSize:  256,
			Interpreter:       "python3",
		},
		Genetics: Genetics{
			MutationProbability: 0.3,
			LineMutationRate:    0.1,
			PersonalityMin:      0,
			PersonalityMax:      1,
			TraitKeys:           []string{"aggression", "caution", "greed", "sociability", "curiosity", "patience"},
			GenomeExt:           ".py",
		},
		Paths: Paths{
			PoolDir:      "./data/pool",
			SeedDir:      "./agents",
			WorkspaceDir: "/tmp/agents",
			DataDir:      "./data",
		},
		SnapshotEveryTicks: 500,
	}
}

// Load reads path over Defaults(); keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []string
	bad := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if t.World.Width <= 0 || t.World.Height <= 0 {
		bad("world size must be positive (got %dx%d)", t.World.Width, t.World.Height)
	}
	if t.World.MaxAgents <= 0 {
		bad("max_agents must be positive")
	}
	if t.World.InitialAgents < 0 || t.World.InitialAgents > t.World.MaxAgents {
		bad("initial_agents must be in [0, max_agents]")
	}
	if t.Energy.InitialMin <= 0 || t.Energy.InitialMax < t.Energy.InitialMin {
		bad("initial energy range invalid: [%g, %g]", t.Energy.InitialMin, t.Energy.InitialMax)
	}
	if t.Energy.BaseCost < 0 || t.Energy.PassiveDecay < 0 || t.Energy.DeathEpsilon < 0 {
		bad("costs, decay and death_epsilon must be non-negative")
	}
	if t.Agents.ActTimeoutMs <= 0 {
		bad("act_timeout_ms must be positive")
	}
	if t.Agents.MaxParallelism <= 0 {
		bad("max_parallelism must be positive")
	}
	if t.Agents.MaxAge <= 0 {
		bad("max_age must be positive")
	}
	if p := t.Genetics.MutationProbability; p < 0 || p > 1 {
		bad("mutation_probability must be in [0,1]")
	}
	if p := t.Genetics.LineMutationRate; p < 0 || p > 1 {
		bad("line_mutation_rate must be in [0,1]")
	}
	if t.Genetics.PersonalityMax < t.Genetics.PersonalityMin {
		bad("personality bounds inverted")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid tuning: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (a Agents) ActTimeout() time.Duration { return time.Duration(a.ActTimeoutMs) * time.Millisecond }

// GlobalDeadline bounds one Decision phase: the per-agent timeout plus slack.
func (a Agents) GlobalDeadline() time.Duration {
	return time.Duration(a.ActTimeoutMs+a.DeadlineSlackMs) * time.Millisecond
}

func (a Agents) GracePeriod() time.Duration { return time.Duration(a.GracePeriodMs) * time.Millisecond }
func (a Agents) TermWait() time.Duration    { return time.Duration(a.TermWaitMs) * time.Millisecond }

func (t Tuning) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalMs) * time.Millisecond
}
