package substrate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// Pre-compiled patterns for parseRetryAfterFromMessage.
var (
	retryAfterTryAgainRegex = regexp.MustCompile(`(?i)try again in (\d+)\s*(second|minute|hour)s?`)
	retryAfterWaitRegex     = regexp.MustCompile(`(?i)wait (\d+)\s*(second|minute|hour)s?`)
	retryAfterColonRegex    = regexp.MustCompile(`(?i)retry[_-]?after["']?\s*:\s*(\d+)`)
)

// ErrorType classifies an Anthropic API error for retry handling.
type ErrorType int

const (
	ErrorTransient ErrorType = iota
	ErrorQuota
	ErrorInvalid
	ErrorAuth
	ErrorUnknown
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTransient:
		return "TRANSIENT"
	case ErrorQuota:
		return "QUOTA"
	case ErrorInvalid:
		return "INVALID"
	case ErrorAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// RetryConfig holds retry/backoff tuning for substrate calls.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Timeout           time.Duration

	CircuitBreakerEnabled bool
	FailureThreshold      int
	SuccessThreshold      int
	OpenTimeout           time.Duration

	MaxQuotaWait time.Duration
}

// DefaultRetryConfig returns the tuning the default substrate adapters use.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        1 * time.Second,
		MaxBackoff:            30 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
		MaxQuotaWait:          15 * time.Minute,
	}
}

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker prevents a misbehaving Anthropic endpoint from being
// hammered by every in-flight trajectory at once.
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
}

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("substrate: circuit breaker is open")

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
	}
}

func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.openTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return nil
		}
		return ErrCircuitOpen
	case CircuitHalfOpen:
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure records a failure, weighting quota errors more heavily so
// they trip the circuit faster than an ordinary transient error would.
func (cb *CircuitBreaker) RecordFailure(errorType ErrorType) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()
	increment := 1
	if errorType == ErrorQuota {
		increment = 3
	}

	switch cb.state {
	case CircuitClosed:
		cb.failureCount += increment
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
			cb.successCount = 0
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.successCount = 0
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// classifyError determines how a call failure should be retried and, for
// quota errors, how long the caller should wait before trying again.
func classifyError(err error) (ErrorType, time.Duration) {
	if err == nil {
		return ErrorUnknown, 0
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrorQuota, parseRetryAfter(apiErr)
		case apiErr.StatusCode >= 500 && apiErr.StatusCode < 600:
			return ErrorTransient, 0
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ErrorAuth, 0
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return ErrorInvalid, 0
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "quota"):
		return ErrorQuota, parseRetryAfterFromMessage(errStr)
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "bad gateway") || strings.Contains(errStr, "service unavailable"):
		return ErrorTransient, 0
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") || strings.Contains(errStr, "network") ||
		errors.Is(err, context.DeadlineExceeded):
		return ErrorTransient, 0
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "forbidden"):
		return ErrorAuth, 0
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "bad request"):
		return ErrorInvalid, 0
	default:
		return ErrorUnknown, 0
	}
}

func parseRetryAfter(apiErr *anthropic.Error) time.Duration {
	if apiErr.Response != nil {
		if retryAfter := apiErr.Response.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				return time.Duration(seconds) * time.Second
			}
		}
		if resetHeader := apiErr.Response.Header.Get("X-RateLimit-Reset"); resetHeader != "" {
			if timestamp, err := strconv.ParseInt(resetHeader, 10, 64); err == nil {
				if wait := time.Until(time.Unix(timestamp, 0)); wait > 0 {
					return wait
				}
			}
		}
	}
	if rawJSON := apiErr.RawJSON(); rawJSON != "" {
		if wait := parseRetryAfterFromMessage(rawJSON); wait > 0 {
			return wait
		}
	}
	if apiErr.Request != nil {
		if wait := parseRetryAfterFromMessage(apiErr.Error()); wait > 0 {
			return wait
		}
	}
	return 1 * time.Hour
}

func parseRetryAfterFromMessage(msg string) time.Duration {
	unitDuration := func(value int, unit string) time.Duration {
		switch unit {
		case "second":
			return time.Duration(value) * time.Second
		case "minute":
			return time.Duration(value) * time.Minute
		case "hour":
			return time.Duration(value) * time.Hour
		default:
			return 0
		}
	}

	if matches := retryAfterTryAgainRegex.FindStringSubmatch(msg); len(matches) == 3 {
		value, _ := strconv.Atoi(matches[1])
		return unitDuration(value, strings.ToLower(matches[2]))
	}
	if matches := retryAfterWaitRegex.FindStringSubmatch(msg); len(matches) == 3 {
		value, _ := strconv.Atoi(matches[1])
		return unitDuration(value, strings.ToLower(matches[2]))
	}
	if matches := retryAfterColonRegex.FindStringSubmatch(msg); len(matches) == 2 {
		if seconds, err := strconv.Atoi(matches[1]); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// callWithRetry runs fn with exponential backoff, circuit-breaker gating,
// and quota-aware waiting. cb may be nil to disable the breaker.
func callWithRetry(ctx context.Context, cfg RetryConfig, cb *CircuitBreaker, operation string, fn func(context.Context) error) error {
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if cb != nil {
			if err := cb.Allow(); err != nil {
				return fmt.Errorf("%s blocked by circuit breaker: %w", operation, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			if cb != nil {
				cb.RecordSuccess()
			}
			return nil
		}
		lastErr = err

		errorType, quotaWait := classifyError(err)
		if cb != nil && errorType != ErrorAuth && errorType != ErrorInvalid {
			cb.RecordFailure(errorType)
		}

		switch errorType {
		case ErrorAuth, ErrorInvalid:
			return fmt.Errorf("%s failed with non-retriable error (%s): %w", operation, errorType, err)

		case ErrorQuota:
			if quotaWait > cfg.MaxQuotaWait {
				return fmt.Errorf("%s failed: %w (quota wait %v exceeds max %v)", operation, err, quotaWait, cfg.MaxQuotaWait)
			}
			if attempt == cfg.MaxRetries {
				break
			}
			select {
			case <-time.After(quotaWait):
				continue
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during quota wait: %w", operation, ctx.Err())
			}

		default:
			if attempt == cfg.MaxRetries {
				break
			}
			select {
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
				if backoff > cfg.MaxBackoff {
					backoff = cfg.MaxBackoff
				}
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled during backoff: %w", operation, ctx.Err())
			}
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxRetries+1, lastErr)
}

func apiKeyFromEnv() (string, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY not set")
	}
	return key, nil
}
