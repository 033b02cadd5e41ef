// Package substrate provides the default, Anthropic-backed implementations
// of the engine's SubstrateExecutor and IntentVerifier seams, plus an
// AI-driven decompose.SubtaskPlanner. Callers of internal/engine may swap
// any of these for their own adapter; nothing in internal/engine imports
// this package.
package substrate

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/abathur-ai/abathur/internal/engine"
	"github.com/abathur-ai/abathur/internal/types"
)

// Config configures a default Anthropic-backed adapter set.
type Config struct {
	APIKey string // defaults to $ANTHROPIC_API_KEY
	Model  string // defaults to claude-sonnet-4-5

	Retry RetryConfig

	// MaxConcurrentCalls rate-limits how many substrate calls may start
	// per second across all trajectories sharing this client (bursts of up
	// to that many calls), which matters under Parallel{n} mode where
	// several trials race to iterate. It does not cap calls already in
	// flight. 0 disables the limiter.
	MaxConcurrentCalls int
}

// DefaultConfig returns the tuning the default adapters use when the
// caller does not override it.
func DefaultConfig() Config {
	return Config{
		Model:              "claude-sonnet-4-5-20250929",
		Retry:              DefaultRetryConfig(),
		MaxConcurrentCalls: 3,
	}
}

// client wraps the raw Anthropic SDK client with the retry/circuit-breaker
// and concurrency-limiting machinery every adapter in this package shares.
type client struct {
	sdk     anthropic.Client
	model   string
	retry   RetryConfig
	breaker *CircuitBreaker
	limiter *rate.Limiter // nil when unbounded
}

func newClient(cfg Config) (*client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		key, err := apiKeyFromEnv()
		if err != nil {
			return nil, err
		}
		apiKey = key
	}

	model := cfg.Model
	if model == "" {
		model = DefaultConfig().Model
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxRetries == 0 && retryCfg.Timeout == 0 {
		retryCfg = DefaultRetryConfig()
	}

	var breaker *CircuitBreaker
	if retryCfg.CircuitBreakerEnabled {
		breaker = NewCircuitBreaker(retryCfg.FailureThreshold, retryCfg.SuccessThreshold, retryCfg.OpenTimeout)
	}

	var limiter *rate.Limiter
	if cfg.MaxConcurrentCalls > 0 {
		// A burst of MaxConcurrentCalls tokens refilling at MaxConcurrentCalls
		// per second bounds the steady-state call rate without serialising bursts of
		// unrelated trajectories that each only call in occasionally.
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxConcurrentCalls), cfg.MaxConcurrentCalls)
	}

	return &client{
		sdk:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		retry:   retryCfg,
		breaker: breaker,
		limiter: limiter,
	}, nil
}

// call sends a single-turn prompt and returns the concatenated text
// content plus token usage, retrying transient failures.
func (c *client) call(ctx context.Context, operation, prompt string, maxTokens int64) (text string, inputTokens, outputTokens int64, err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", 0, 0, fmt.Errorf("%s: rate limiter: %w", operation, err)
		}
	}

	var resp *anthropic.Message
	callErr := callWithRetry(ctx, c.retry, c.breaker, operation, func(attemptCtx context.Context) error {
		r, apiErr := c.sdk.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		resp = r
		return nil
	})
	if callErr != nil {
		return "", 0, 0, callErr
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}

// AnthropicSubstrate is the default engine.SubstrateExecutor: one call per
// strategy execution, framed by the strategy's prompt template.
type AnthropicSubstrate struct {
	client *client
}

// NewAnthropicSubstrate constructs the default substrate adapter.
func NewAnthropicSubstrate(cfg Config) (*AnthropicSubstrate, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AnthropicSubstrate{client: c}, nil
}

var _ engine.SubstrateExecutor = (*AnthropicSubstrate)(nil)

// Execute implements engine.SubstrateExecutor.
func (a *AnthropicSubstrate) Execute(ctx context.Context, strategy types.Strategy, task types.TaskSubmission, traj *types.Trajectory) (engine.Artifact, error) {
	start := time.Now()
	prompt := buildExecutionPrompt(strategy, task, traj)

	text, inTokens, outTokens, err := a.client.call(ctx, "substrate-execute", prompt, 8192)
	if err != nil {
		return engine.Artifact{}, fmt.Errorf("substrate execute: %w", err)
	}

	return engine.Artifact{
		Ref:                 text,
		Content:             text,
		Tokens:              int(inTokens + outTokens),
		WallTime:            time.Since(start),
		UsefulContextTokens: int(inTokens),
		TotalContextTokens:  int(inTokens),
	}, nil
}
