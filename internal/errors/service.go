// internal/errors/service.go

// Package errors provides the crawl recovery service: bounded retries with
// exponential backoff, per-operation circuit breakers, and the translation
// of failures into operator-facing messages and process exit codes.
package errors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when an operation's circuit breaker is open
// and the call was short-circuited without running.
var ErrCircuitOpen = errors.New("circuit breaker open")

// RetryConfig defines retry behavior for guarded operations.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay      time.Duration `yaml:"max_delay" json:"max_delay"`
}

// DefaultRetryConfig suits portal navigation: a few attempts with delays
// that back off fast enough to ride out transient blocks.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		BackoffFactor: 2.0,
		MaxDelay:      time.Minute,
	}
}

// BreakerConfig configures a circuit breaker for one operation.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// Service guards navigation and output operations with retries and circuit
// breakers, and maps the errors that escape into CLI messages and exit codes.
type Service struct {
	retry    RetryConfig
	verbose  bool
	breakers map[string]*CircuitBreaker
	mu       sync.Mutex
}

// NewService creates a recovery service with default retry behavior.
func NewService() *Service {
	return &Service{
		retry:    DefaultRetryConfig(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// WithVerbose enables technical error details in CLI output.
func (s *Service) WithVerbose(verbose bool) *Service {
	s.verbose = verbose
	return s
}

// WithRetryConfig overrides the retry behavior.
func (s *Service) WithRetryConfig(cfg RetryConfig) *Service {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	s.retry = cfg
	return s
}

// ConfigureBreaker sets breaker thresholds for a named operation. Operations
// without explicit configuration get a breaker with default thresholds on
// first use.
func (s *Service) ConfigureBreaker(name string, cfg BreakerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[name] = newCircuitBreaker(name, cfg)
}

// Retry runs op until it succeeds, fails a non-retryable way, exhausts the
// configured attempts, or ctx is done. The operation's circuit breaker
// short-circuits calls while open; every attempt outcome feeds it.
func (s *Service) Retry(ctx context.Context, name string, op func() error) error {
	breaker := s.breaker(name)
	if !breaker.Allow() {
		return fmt.Errorf("%s: %w", name, ErrCircuitOpen)
	}

	var lastErr error
	tries := 0
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tries++
		err := op()
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}
		lastErr = err
		breaker.RecordFailure()

		if attempt == s.retry.MaxRetries || !retryable(err) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay(attempt)):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, tries, lastErr)
}

func (s *Service) breaker(name string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[name]
	if !ok {
		cb = newCircuitBreaker(name, BreakerConfig{MaxFailures: 5, ResetTimeout: time.Minute})
		s.breakers[name] = cb
	}
	return cb
}

func (s *Service) delay(attempt int) time.Duration {
	d := time.Duration(float64(s.retry.BaseDelay) * math.Pow(s.retry.BackoffFactor, float64(attempt)))
	if s.retry.MaxDelay > 0 && d > s.retry.MaxDelay {
		d = s.retry.MaxDelay
	}
	return d
}

// retryable reports whether an error looks transient. Browser and network
// failures surface as strings (chromedp forwards net:: codes), so the check
// is textual. Context cancellation is never retried.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	transient := []string{
		"timeout",
		"timed out",
		"net::err",
		"connection refused",
		"connection reset",
		"no such host",
		"temporarily",
		"try again",
		"429",
		"500",
		"502",
		"503",
		"504",
	}
	for _, marker := range transient {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// Exit codes returned by GetExitCode. 130 follows the shell convention for
// an interrupted process.
const (
	ExitOK         = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitNavigation = 3
	ExitExtraction = 4
	ExitOutput     = 5
	ExitValidation = 6
	ExitRateLimit  = 7
	ExitCancelled  = 130
)

// GetExitCode maps an error to a deterministic process exit code. The match
// is textual over the wrapped chain, so sentinel messages from the scraper
// package land in their category without an import in either direction.
func (s *Service) GetExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitCancelled
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "config") || strings.Contains(errStr, "yaml"):
		return ExitConfig
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return ExitRateLimit
	case strings.Contains(errStr, "navigation failed") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") || strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "net::err"):
		return ExitNavigation
	case strings.Contains(errStr, "no listing cards") || strings.Contains(errStr, "extraction failed") ||
		strings.Contains(errStr, "selector") || strings.Contains(errStr, "stale"):
		return ExitExtraction
	case strings.Contains(errStr, "output write failed") || strings.Contains(errStr, "database") ||
		strings.Contains(errStr, "sql") || strings.Contains(errStr, "write"):
		return ExitOutput
	case strings.Contains(errStr, "validation"):
		return ExitValidation
	default:
		return ExitGeneral
	}
}

// FriendlyMessage converts a technical error into an operator-facing title,
// explanation, and suggestions.
func (s *Service) FriendlyMessage(err error) (title, message string, suggestions []string) {
	if err == nil {
		return "", "", nil
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "Connection Timeout",
			"The portal did not respond in time.",
			[]string{
				"Check your internet connection",
				"Increase limits.max_duration or the browser timeout in the config",
				"The portal may be slow or rate limiting; try again later",
			}
	case strings.Contains(errStr, "no such host"):
		return "Domain Not Found",
			"The portal hostname did not resolve.",
			[]string{
				"Check the search URL override in the config",
				"Verify the portal opens in a regular browser",
				"Check your DNS settings",
			}
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "net::err"):
		return "Connection Failed",
			"The portal refused or dropped the connection.",
			[]string{
				"Verify the portal is reachable in a regular browser",
				"Your IP may be blocked; configure a proxy in browser.proxy",
				"Try again after a short wait",
			}
	case strings.Contains(errStr, "no listing cards"):
		return "No Listings Found",
			"The results page loaded but no listing cards were recognized.",
			[]string{
				"Check the city and locality spelling in the config",
				"The portal markup may have changed; run with log level debug",
				"Some localities genuinely have no active listings",
			}
	case strings.Contains(errStr, "yaml"):
		return "Configuration Error",
			"The crawl config file has invalid YAML syntax.",
			[]string{
				"Check indentation (use spaces, not tabs)",
				"Quote values containing colons or special characters",
				"Run the validate subcommand for the precise location",
			}
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return "Rate Limit Hit",
			"The portal is pushing back on request volume.",
			[]string{
				"Increase pacing.base_interval in the config",
				"Lower limits.target_listings for this run",
				"Switch to a different proxy or wait before retrying",
			}
	case strings.Contains(errStr, "output write failed") || strings.Contains(errStr, "database") ||
		strings.Contains(errStr, "sql"):
		return "Output Error",
			"Extracted records could not be written to a configured sink.",
			[]string{
				"Check free disk space and directory permissions",
				"Verify database DSNs in the .env file",
				"Partial results may still exist in earlier flushes",
			}
	default:
		return "Unexpected Error",
			"An unexpected error occurred during the operation.",
			[]string{
				"Run the command again",
				"Run the validate subcommand against your config",
				"Re-run with verbose logging for details",
			}
	}
}

// FormatForCLI renders an error for terminal display.
func (s *Service) FormatForCLI(err error) string {
	title, message, suggestions := s.FriendlyMessage(err)

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n%s\n", title, message)

	if s.verbose {
		fmt.Fprintf(&b, "\nTechnical details: %v\n", err)
	}

	if len(suggestions) > 0 {
		b.WriteString("\nSuggestions:\n")
		for _, suggestion := range suggestions {
			fmt.Fprintf(&b, "  - %s\n", suggestion)
		}
	}

	return b.String()
}

// CircuitBreakerState represents the state of a circuit breaker.
type CircuitBreakerState int

const (
	CircuitClosed CircuitBreakerState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops hammering an operation that keeps failing. It opens
// after maxFailures consecutive failures and allows a probe attempt once
// resetTimeout has passed.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	nextAttempt time.Time
}

func newCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Allow reports whether a call may proceed, transitioning an expired open
// breaker to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Now().After(cb.nextAttempt) {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a failure, opening the breaker at the threshold. A
// failed half-open probe reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = CircuitOpen
		cb.nextAttempt = time.Now().Add(cb.resetTimeout)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerStates snapshots every breaker for diagnostics.
func (s *Service) BreakerStates() map[string]CircuitBreakerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]CircuitBreakerState, len(s.breakers))
	for name, cb := range s.breakers {
		states[name] = cb.State()
	}
	return states
}
