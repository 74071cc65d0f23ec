package promptapi

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "prompt-studio/backend/pkg/errors"
	"prompt-studio/backend/pkg/logger"
)

// Class groups remote calls that share a failure posture
type Class string

const (
	// ClassRead covers GETs: view initialization, candidate listing
	ClassRead Class = "read"
	// ClassCreate covers POST /prompts
	ClassCreate Class = "create"
	// ClassParent covers parent patches: detach (null) and re-parent
	ClassParent Class = "parent"
	// ClassPosition covers flow position patches
	ClassPosition Class = "position"
	// ClassUpdate covers full replaces and deletes
	ClassUpdate Class = "update"
	// ClassExecute covers prompt execution
	ClassExecute Class = "execute"
)

// Rule is the retry posture of one call class
type Rule struct {
	MaxAttempts int
	Backoff     time.Duration
}

// BreakerSettings configures the circuit breaker kept per call class
type BreakerSettings struct {
	FailureThreshold float64
	MinRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerSettings trips at 80% failures over at least 5 requests
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 0.8,
		MinRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
	}
}

// DefaultRules returns the per class posture. Writes are never retried:
// a failed structural write surfaces to the user, a failed position write is
// only logged. Reads are idempotent and get one retry on transient failures.
func DefaultRules() map[Class]Rule {
	return map[Class]Rule{
		ClassRead:     {MaxAttempts: 2, Backoff: 200 * time.Millisecond},
		ClassCreate:   {MaxAttempts: 1},
		ClassParent:   {MaxAttempts: 1},
		ClassPosition: {MaxAttempts: 1},
		ClassUpdate:   {MaxAttempts: 1},
		ClassExecute:  {MaxAttempts: 1},
	}
}

// Policy applies the retry rule and circuit breaker of a call's class
type Policy struct {
	rules    map[Class]Rule
	breakers map[Class]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewPolicy builds one breaker per class in rules
func NewPolicy(rules map[Class]Rule, settings BreakerSettings) *Policy {
	p := &Policy{
		rules:    rules,
		breakers: make(map[Class]*gobreaker.CircuitBreaker, len(rules)),
		logger:   logger.Named("promptapi.policy"),
	}
	for class := range rules {
		p.breakers[class] = newBreaker(class, settings, p.logger)
	}
	return p
}

// DefaultPolicy is NewPolicy(DefaultRules(), DefaultBreakerSettings())
func DefaultPolicy() *Policy {
	return NewPolicy(DefaultRules(), DefaultBreakerSettings())
}

func newBreaker(class Class, settings BreakerSettings, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prompt-store-" + string(class),
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// 4xx answers say nothing about the store's health
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
	})
}

// Do runs call under the rule and breaker of class
func (p *Policy) Do(ctx context.Context, class Class, call func(ctx context.Context) error) error {
	rule, ok := p.rules[class]
	if !ok || rule.MaxAttempts < 1 {
		rule = Rule{MaxAttempts: 1}
	}
	breaker := p.breakers[class]

	var err error
	for attempt := 1; attempt <= rule.MaxAttempts; attempt++ {
		if attempt > 1 {
			p.logger.Debug("Retrying remote call",
				zap.String("class", string(class)),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", rule.Backoff),
			)
			select {
			case <-ctx.Done():
				return apperrors.NewContextCancelled(string(class), ctx.Err())
			case <-time.After(rule.Backoff):
			}
		}

		start := time.Now()
		if breaker != nil {
			_, err = breaker.Execute(func() (interface{}, error) {
				return nil, call(ctx)
			})
		} else {
			err = call(ctx)
		}
		observe(class, err, time.Since(start))

		if err == nil {
			return nil
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%s calls suspended: %w", class, err)
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
	}
	return err
}
