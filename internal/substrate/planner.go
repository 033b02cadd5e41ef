package substrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/abathur-ai/abathur/internal/ai"
	"github.com/abathur-ai/abathur/internal/decompose"
	"github.com/abathur-ai/abathur/internal/types"
)

// AIPlanner is the default decompose.SubtaskPlanner: one call that asks
// the model to break a task into independently convergeable subtasks.
// Grounded on the teacher's GeneratePlan/RefinePhase prompting pattern in
// internal/ai/supervisor.go, narrowed to the single proposal shape
// decompose.Coordinator needs.
type AIPlanner struct {
	client *client
}

var _ decompose.SubtaskPlanner = (*AIPlanner)(nil)

// NewAIPlanner constructs the default subtask planner sharing cfg's
// retry/circuit-breaker/rate-limit tuning with the other adapters.
func NewAIPlanner(cfg Config) (*AIPlanner, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AIPlanner{client: c}, nil
}

type subtaskProposal struct {
	Subtasks []proposedSubtask `json:"subtasks"`
}

type proposedSubtask struct {
	Description     string   `json:"description"`
	AcceptanceTests []string `json:"acceptance_tests"`
	Invariants      []string `json:"invariants"`
	Complexity      string   `json:"complexity"`
}

// ProposeSubtasks implements decompose.SubtaskPlanner.
func (p *AIPlanner) ProposeSubtasks(ctx context.Context, task types.TaskSubmission) ([]types.TaskSubmission, error) {
	prompt := buildDecompositionPrompt(task)

	text, _, _, err := p.client.call(ctx, "propose-subtasks", prompt, 4096)
	if err != nil {
		return nil, fmt.Errorf("propose subtasks: %w", err)
	}

	parsed := ai.Parse[subtaskProposal](text, ai.ParseOptions{Context: "subtask proposal response"})
	if !parsed.Success {
		return nil, fmt.Errorf("propose subtasks: %s", parsed.Error)
	}
	if len(parsed.Data.Subtasks) == 0 {
		return nil, fmt.Errorf("propose subtasks: model returned no subtasks")
	}

	subtasks := make([]types.TaskSubmission, 0, len(parsed.Data.Subtasks))
	for _, s := range parsed.Data.Subtasks {
		subtasks = append(subtasks, types.TaskSubmission{
			Description:     s.Description,
			GoalID:          task.GoalID,
			Complexity:      complexityFromString(s.Complexity, task.Complexity),
			AcceptanceTests: s.AcceptanceTests,
			Invariants:      s.Invariants,
			ContextFiles:    task.ContextFiles,
			Tags:            task.Tags,
		})
	}
	return subtasks, nil
}

func complexityFromString(s string, fallback types.Complexity) types.Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trivial":
		return types.ComplexityTrivial
	case "simple":
		return types.ComplexitySimple
	case "moderate":
		return types.ComplexityModerate
	case "complex":
		return types.ComplexityComplex
	default:
		return fallback
	}
}

func buildDecompositionPrompt(task types.TaskSubmission) string {
	var b strings.Builder
	b.WriteString("Decompose the task below into a set of independently convergeable subtasks. ")
	b.WriteString("Each subtask must be a self-contained unit of work with its own acceptance tests.\n\n")
	fmt.Fprintf(&b, "# Task\n\n%s\n\n", task.Description)
	if len(task.AcceptanceTests) > 0 {
		b.WriteString("# Acceptance tests\n")
		for _, t := range task.AcceptanceTests {
			fmt.Fprintf(&b, "- %s\n", t)
		}
		b.WriteString("\n")
	}
	if len(task.Invariants) > 0 {
		b.WriteString("# Invariants\n")
		for _, inv := range task.Invariants {
			fmt.Fprintf(&b, "- %s\n", inv)
		}
		b.WriteString("\n")
	}
	b.WriteString(`Respond with JSON: {"subtasks": [{"description": string, "acceptance_tests": [string], "invariants": [string], "complexity": "trivial"|"simple"|"moderate"|"complex"}]}.` + "\n")
	return b.String()
}
