// Package config loads the YAML-driven operator configuration for the
// Convergence Engine: the default ConvergencePolicy, ConvergenceBudget
// template, per-complexity convergence_delta weight overrides, and the
// default substrate adapter's tuning. Grounded on
// internal/discovery/config.go's ConfigFile->ToConfig() preset-overlay
// pattern: start from a preset, then apply only the fields the file
// actually sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abathur-ai/abathur/internal/metrics"
	"github.com/abathur-ai/abathur/internal/types"
)

// Preset names a predefined Config bundle.
type Preset string

const (
	PresetConservative Preset = "conservative"
	PresetStandard     Preset = "standard"
	PresetAggressive   Preset = "aggressive"
)

// SubstrateConfig is the subset of internal/substrate.Config that is
// meaningfully operator-tunable from a config file; internal/config does
// not import internal/substrate; callers map this onto substrate.Config
// themselves, keeping the dependency direction config -> types only.
type SubstrateConfig struct {
	Model              string
	MaxConcurrentCalls int
	RetryMaxRetries    int
	RetryTimeout       time.Duration
}

// Config is the fully-resolved configuration: everything engine.New and
// substrate.NewAnthropicSubstrate/NewChainedVerifier/NewAIPlanner need.
type Config struct {
	Preset    Preset
	Policy    types.ConvergencePolicy
	Budget    types.ConvergenceBudget
	Substrate SubstrateConfig
}

// DefaultConfig returns the Standard preset.
func DefaultConfig() *Config {
	return PresetConfig(PresetStandard)
}

// PresetConfig returns the bundle for a named preset. Unknown presets fall
// back to Standard, the same defensive default discovery.PresetConfig
// uses for PresetCustom before file overrides are applied.
func PresetConfig(preset Preset) *Config {
	policy := types.DefaultConvergencePolicy()
	budget := types.ConvergenceBudget{
		MaxTokens:     200_000,
		MaxWallTime:   30 * time.Minute,
		MaxIterations: 12,
		MaxExtensions: 2,
	}
	substrateCfg := SubstrateConfig{
		Model:              "claude-sonnet-4-5-20250929",
		MaxConcurrentCalls: 3,
		RetryMaxRetries:    3,
		RetryTimeout:       60 * time.Second,
	}

	switch preset {
	case PresetConservative:
		policy.AcceptanceThreshold = 0.98
		policy.ExplorationWeight = 0.15
		policy.PreferCheapStrategies = true
		policy.MaxFreshStarts = 2
		budget.MaxTokens = 120_000
		budget.MaxWallTime = 15 * time.Minute
		budget.MaxIterations = 8
		substrateCfg.MaxConcurrentCalls = 2

	case PresetAggressive:
		policy.AcceptanceThreshold = 0.90
		policy.ExplorationWeight = 0.45
		policy.PartialAcceptance = true
		policy.MaxFreshStarts = 5
		budget.MaxTokens = 500_000
		budget.MaxWallTime = 60 * time.Minute
		budget.MaxIterations = 25
		budget.MaxExtensions = 4
		substrateCfg.MaxConcurrentCalls = 6

	case PresetStandard:
		// keep the defaults above

	default:
		preset = PresetStandard
	}

	return &Config{Preset: preset, Policy: policy, Budget: budget, Substrate: substrateCfg}
}

// ConfigFile is the on-disk shape of .abathur/convergence.yaml.
type ConfigFile struct {
	Preset string `yaml:"preset"`

	Policy    PolicyFile    `yaml:"policy"`
	Budget    BudgetFile    `yaml:"budget"`
	Substrate SubstrateFile `yaml:"substrate"`

	// Weights overrides metrics.DefaultWeights per complexity. Keys are
	// "trivial", "simple", "moderate", "complex", "exploratory"; any
	// complexity absent from the map keeps the built-in default.
	Weights map[string]WeightsFile `yaml:"weights"`
}

type PolicyFile struct {
	ExplorationWeight           *float64 `yaml:"exploration_weight"`
	AcceptanceThreshold         *float64 `yaml:"acceptance_threshold"`
	PartialAcceptance           *bool    `yaml:"partial_acceptance"`
	PartialThreshold            *float64 `yaml:"partial_threshold"`
	SkipExpensiveOverseers      *bool    `yaml:"skip_expensive_overseers"`
	GenerateAcceptanceTests     *bool    `yaml:"generate_acceptance_tests"`
	IntentVerificationFrequency *int     `yaml:"intent_verification_frequency"`
	PreferCheapStrategies       *bool    `yaml:"prefer_cheap_strategies"`
	MaxFreshStarts              *int     `yaml:"max_fresh_starts"`
	PriorityHint                string   `yaml:"priority_hint"`
}

type BudgetFile struct {
	MaxTokens     int    `yaml:"max_tokens"`
	MaxWallTime   string `yaml:"max_wall_time"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxExtensions int    `yaml:"max_extensions"`
}

type SubstrateFile struct {
	Model              string `yaml:"model"`
	MaxConcurrentCalls int    `yaml:"max_concurrent_calls"`
	RetryMaxRetries    int    `yaml:"retry_max_retries"`
	RetryTimeout       string `yaml:"retry_timeout"`
}

type WeightsFile struct {
	Test       float64 `yaml:"test"`
	Error      float64 `yaml:"error"`
	Regression float64 `yaml:"regression"`
	Structural float64 `yaml:"structural"`
}

// LoadConfigFile reads <projectRoot>/.abathur/convergence.yaml. A missing
// file is not an error: it returns the Standard preset unchanged, mirroring
// discovery.LoadConfigFile's missing-file fallback.
func LoadConfigFile(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ".abathur", "convergence.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return file.ToConfig()
}

// ToConfig overlays the file's fields onto the named (or default) preset.
func (f *ConfigFile) ToConfig() (*Config, error) {
	cfg := DefaultConfig()
	if f.Preset != "" {
		cfg = PresetConfig(Preset(f.Preset))
	}

	applyPolicyOverrides(&cfg.Policy, f.Policy)

	if f.Budget.MaxTokens > 0 {
		cfg.Budget.MaxTokens = f.Budget.MaxTokens
	}
	if f.Budget.MaxWallTime != "" {
		d, err := parseDuration(f.Budget.MaxWallTime)
		if err != nil {
			return nil, fmt.Errorf("invalid budget.max_wall_time: %w", err)
		}
		cfg.Budget.MaxWallTime = d
	}
	if f.Budget.MaxIterations > 0 {
		cfg.Budget.MaxIterations = f.Budget.MaxIterations
	}
	if f.Budget.MaxExtensions > 0 {
		cfg.Budget.MaxExtensions = f.Budget.MaxExtensions
	}

	if f.Substrate.Model != "" {
		cfg.Substrate.Model = f.Substrate.Model
	}
	if f.Substrate.MaxConcurrentCalls > 0 {
		cfg.Substrate.MaxConcurrentCalls = f.Substrate.MaxConcurrentCalls
	}
	if f.Substrate.RetryMaxRetries > 0 {
		cfg.Substrate.RetryMaxRetries = f.Substrate.RetryMaxRetries
	}
	if f.Substrate.RetryTimeout != "" {
		d, err := parseDuration(f.Substrate.RetryTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid substrate.retry_timeout: %w", err)
		}
		cfg.Substrate.RetryTimeout = d
	}

	if len(f.Weights) > 0 {
		overrides := make(map[types.Complexity]types.DeltaWeights, len(f.Weights))
		for complexity, w := range metrics.DefaultWeights {
			overrides[complexity] = w
		}
		for key, w := range f.Weights {
			complexity := types.Complexity(key)
			if _, known := metrics.DefaultWeights[complexity]; !known {
				return nil, fmt.Errorf("unknown complexity in weights override: %q", key)
			}
			overrides[complexity] = types.DeltaWeights{
				Test:       w.Test,
				Error:      w.Error,
				Regression: w.Regression,
				Structural: w.Structural,
			}
		}
		cfg.Policy.DeltaWeights = overrides
	}

	return cfg, nil
}

func applyPolicyOverrides(policy *types.ConvergencePolicy, f PolicyFile) {
	if f.ExplorationWeight != nil {
		policy.ExplorationWeight = *f.ExplorationWeight
	}
	if f.AcceptanceThreshold != nil {
		policy.AcceptanceThreshold = *f.AcceptanceThreshold
	}
	if f.PartialAcceptance != nil {
		policy.PartialAcceptance = *f.PartialAcceptance
	}
	if f.PartialThreshold != nil {
		policy.PartialThreshold = *f.PartialThreshold
	}
	if f.SkipExpensiveOverseers != nil {
		policy.SkipExpensiveOverseers = *f.SkipExpensiveOverseers
	}
	if f.GenerateAcceptanceTests != nil {
		policy.GenerateAcceptanceTests = *f.GenerateAcceptanceTests
	}
	if f.IntentVerificationFrequency != nil {
		policy.IntentVerificationFrequency = *f.IntentVerificationFrequency
	}
	if f.PreferCheapStrategies != nil {
		policy.PreferCheapStrategies = *f.PreferCheapStrategies
	}
	if f.MaxFreshStarts != nil {
		policy.MaxFreshStarts = *f.MaxFreshStarts
	}
	if f.PriorityHint != "" {
		hint := types.PriorityHint(f.PriorityHint)
		policy.PriorityHint = &hint
	}
}

// parseDuration extends time.ParseDuration with a "d" (day) suffix, copied
// from internal/discovery/config.go's parseDuration: it is generic enough
// that adapting it would only mean renaming.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
