package overseer

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/abathur-ai/abathur/internal/types"
)

// CommandOverseer runs an external command against the artifact's working
// directory and reports pass/fail plus captured output, following
// internal/gates/gates.go's runBuildGate/runTestGate/runLintGate shape.
type CommandOverseer struct {
	name       string
	cost       CostClass
	workingDir string
	command    []string
	// toMeasurement builds the typed signal from the command's outcome.
	toMeasurement func(passed bool, output string, cmdErr error) Measurement
}

// NewCompilationOverseer builds the Cheap compilation/build check.
func NewCompilationOverseer(workingDir string) *CommandOverseer {
	return &CommandOverseer{
		name:       "compilation",
		cost:       CostCheap,
		workingDir: workingDir,
		command:    []string{"go", "build", "./..."},
		toMeasurement: func(passed bool, output string, cmdErr error) Measurement {
			cr := &types.CheckResult{Passed: passed}
			if !passed {
				cr.Errors = []string{output}
			}
			return Measurement{BuildResult: cr}
		},
	}
}

// NewTypeCheckOverseer builds the Cheap type-check gate.
func NewTypeCheckOverseer(workingDir string) *CommandOverseer {
	return &CommandOverseer{
		name:       "type_check",
		cost:       CostCheap,
		workingDir: workingDir,
		command:    []string{"go", "vet", "./..."},
		toMeasurement: func(passed bool, output string, cmdErr error) Measurement {
			cr := &types.CheckResult{Passed: passed}
			if !passed {
				cr.Errors = []string{output}
			}
			return Measurement{TypeCheck: cr}
		},
	}
}

// NewLintOverseer builds the Moderate lint gate.
func NewLintOverseer(workingDir string) *CommandOverseer {
	return &CommandOverseer{
		name:       "lint",
		cost:       CostModerate,
		workingDir: workingDir,
		command:    []string{"golangci-lint", "run", "./..."},
		toMeasurement: func(passed bool, output string, cmdErr error) Measurement {
			cr := &types.CheckResult{Passed: passed}
			if !passed {
				cr.Errors = []string{output}
			}
			return Measurement{LintResults: cr}
		},
	}
}

// NewTestOverseer builds the Moderate full-test-suite gate.
func NewTestOverseer(workingDir string) *CommandOverseer {
	return &CommandOverseer{
		name:       "test",
		cost:       CostModerate,
		workingDir: workingDir,
		command:    []string{"go", "test", "-timeout=2m", "./..."},
		toMeasurement: func(passed bool, output string, cmdErr error) Measurement {
			tr := &types.TestResults{}
			if passed {
				tr.Passed, tr.Total = 1, 1
			} else {
				tr.Failed, tr.Total = 1, 1
			}
			return Measurement{TestResults: tr}
		},
	}
}

// NewSecurityScanOverseer builds the Expensive security scan gate.
func NewSecurityScanOverseer(workingDir string) *CommandOverseer {
	return &CommandOverseer{
		name:       "security_scan",
		cost:       CostExpensive,
		workingDir: workingDir,
		command:    []string{"govulncheck", "./..."},
		toMeasurement: func(passed bool, output string, cmdErr error) Measurement {
			res := &types.SecurityScanResult{}
			if !passed {
				res.VulnerabilityCount = 1
				res.Findings = []string{output}
			}
			return Measurement{SecurityScan: res}
		},
	}
}

func (c *CommandOverseer) Name() string         { return c.name }
func (c *CommandOverseer) CostClass() CostClass { return c.cost }

func (c *CommandOverseer) Measure(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission) (Measurement, error) {
	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Dir = c.workingDir
	output, err := cmd.CombinedOutput()

	if ctx.Err() != nil {
		return c.toMeasurement(false, string(output), ctx.Err()), fmt.Errorf("%s canceled: %w", c.name, ctx.Err())
	}

	passed := err == nil
	return c.toMeasurement(passed, string(output), err), nil
}

// CustomOverseer wraps an arbitrary named pass/fail function, for
// task-supplied custom checks (§4.2).
type CustomOverseer struct {
	CheckName   string
	Description string
	Cost        CostClass
	Fn          func(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission) (bool, error)
}

func (c *CustomOverseer) Name() string         { return c.CheckName }
func (c *CustomOverseer) CostClass() CostClass { return c.Cost }

func (c *CustomOverseer) Measure(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission) (Measurement, error) {
	passed, err := c.Fn(ctx, artifact, task)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Custom: &types.CustomCheckResult{
		Name:        c.CheckName,
		Passed:      passed,
		Description: c.Description,
	}}, nil
}

// AcceptanceTestOverseer runs the acceptance tests generated during
// preparation (§4.2, §4.7). It is Moderate cost: more expensive than a
// compile/vet check but cheaper than a full security scan.
type AcceptanceTestOverseer struct {
	workingDir string
	tests      []string
}

// NewAcceptanceTestOverseer builds an overseer over the given generated
// acceptance test files.
func NewAcceptanceTestOverseer(workingDir string, tests []string) *AcceptanceTestOverseer {
	return &AcceptanceTestOverseer{workingDir: workingDir, tests: tests}
}

func (a *AcceptanceTestOverseer) Name() string         { return "acceptance_tests" }
func (a *AcceptanceTestOverseer) CostClass() CostClass { return CostModerate }

func (a *AcceptanceTestOverseer) Measure(ctx context.Context, artifact ArtifactRef, task types.TaskSubmission) (Measurement, error) {
	if len(a.tests) == 0 {
		return Measurement{TestResults: &types.TestResults{}}, nil
	}
	args := append([]string{"test", "-timeout=2m"}, a.tests...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = a.workingDir
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return Measurement{}, fmt.Errorf("acceptance tests canceled: %w", ctx.Err())
	}
	tr := &types.TestResults{Total: len(a.tests)}
	if err == nil {
		tr.Passed = len(a.tests)
	} else {
		tr.Failed = len(a.tests)
		tr.Regressions = []string{string(output)}
	}
	return Measurement{TestResults: tr}, nil
}
