package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/abathur-ai/abathur/internal/attractor"
	"github.com/abathur-ai/abathur/internal/bandit"
	"github.com/abathur-ai/abathur/internal/config"
	"github.com/abathur-ai/abathur/internal/decompose"
	"github.com/abathur-ai/abathur/internal/engine"
	"github.com/abathur-ai/abathur/internal/events"
	"github.com/abathur-ai/abathur/internal/overseer"
	"github.com/abathur-ai/abathur/internal/prepare"
	"github.com/abathur-ai/abathur/internal/substrate"
)

// substrateConfig maps config.SubstrateConfig (the operator-tunable
// subset loaded from .abathur/convergence.yaml) onto substrate.Config,
// the shape the default adapters actually construct their client from.
// internal/config deliberately does not import internal/substrate, so
// this mapping lives here, at the one place both packages meet.
func substrateConfig(c config.SubstrateConfig) substrate.Config {
	sc := substrate.DefaultConfig()
	if c.Model != "" {
		sc.Model = c.Model
	}
	if c.MaxConcurrentCalls > 0 {
		sc.MaxConcurrentCalls = c.MaxConcurrentCalls
	}
	if c.RetryMaxRetries > 0 {
		sc.Retry.MaxRetries = c.RetryMaxRetries
	}
	if c.RetryTimeout > 0 {
		sc.Retry.Timeout = c.RetryTimeout
	}
	return sc
}

// buildEngine wires the Anthropic-backed substrate adapters, the built-in
// overseer set, the attractor classifier, a fresh bandit seeded from
// persisted priors, the PREPARE-phase preparer, and the decomposition
// coordinator into one Engine. workingDir is where the built-in overseers
// (go build/vet/test) run their commands, and bus receives every
// lifecycle/per-iteration/intervention event the engine emits.
func buildEngine(workingDir string, bus events.Bus) (*engine.Engine, error) {
	scfg := substrateConfig(cfg.Substrate)

	exec, err := substrate.NewAnthropicSubstrate(scfg)
	if err != nil {
		return nil, fmt.Errorf("build substrate executor: %w", err)
	}
	verifier, err := substrate.NewChainedVerifier(scfg)
	if err != nil {
		return nil, fmt.Errorf("build intent verifier: %w", err)
	}
	planner, err := substrate.NewAIPlanner(scfg)
	if err != nil {
		return nil, fmt.Errorf("build subtask planner: %w", err)
	}

	overseers := []overseer.Overseer{
		overseer.NewCompilationOverseer(workingDir),
		overseer.NewTypeCheckOverseer(workingDir),
		overseer.NewLintOverseer(workingDir),
		overseer.NewTestOverseer(workingDir),
		overseer.NewSecurityScanOverseer(workingDir),
	}
	gray := color.New(color.FgHiBlack).SprintFunc()
	progress := func(phase overseer.CostClass, completed, total int, elapsedSeconds int64) {
		fmt.Printf("  %s\n", gray(fmt.Sprintf("[%s] %d/%d overseers (%ds)", phase, completed, total, elapsedSeconds)))
	}
	runner := overseer.NewRunner(overseers, progress)

	b := bandit.New()
	priors, err := db.LoadBanditPriors(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load bandit priors: %w", err)
	}
	b.LoadPriors(priors)

	preparer := &prepare.Preparer{Generator: nil, Bus: bus}

	coordinator := &decompose.Coordinator{Planner: planner}

	e := engine.New(exec, runner, verifier, attractor.NewClassifier(), b, db, bus, preparer, coordinator)
	coordinator.Runner = e
	return e, nil
}
