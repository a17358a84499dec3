package shared

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SourceCircuitBreaker stops hammering a failing dataset source. After
// failureThreshold consecutive failures it opens for cooldown; the first call
// after the cooldown is let through as a half-open probe.
type SourceCircuitBreaker struct {
	sourceName       string
	failureThreshold int
	cooldown         time.Duration

	mutex               sync.Mutex
	consecutiveFailures int
	openedAt            time.Time
	open                bool
	now                 func() time.Time
}

// NewSourceCircuitBreaker creates a breaker for the named source
func NewSourceCircuitBreaker(sourceName string, failureThreshold int, cooldown time.Duration) *SourceCircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &SourceCircuitBreaker{
		sourceName:       sourceName,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// RecordSuccess closes the breaker and resets the failure streak
func (b *SourceCircuitBreaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.open {
		logrus.WithFields(logrus.Fields{
			"component": "SourceCircuitBreaker",
			"source":    b.sourceName,
		}).Info("Circuit breaker closed after successful probe")
	}
	b.open = false
	b.consecutiveFailures = 0
}

// RecordFailure extends the failure streak and opens the breaker at the threshold
func (b *SourceCircuitBreaker) RecordFailure() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		if !b.open {
			logrus.WithFields(logrus.Fields{
				"component":            "SourceCircuitBreaker",
				"source":               b.sourceName,
				"consecutive_failures": b.consecutiveFailures,
				"cooldown":             b.cooldown,
			}).Warn("Circuit breaker opened due to repeated source failures")
		}
		b.open = true
		b.openedAt = b.now()
	}
}

// IsOpen reports whether calls are currently short-circuited
func (b *SourceCircuitBreaker) IsOpen() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.open {
		return false
	}
	return b.now().Sub(b.openedAt) < b.cooldown
}

// Execute runs fn unless the breaker is open
func (b *SourceCircuitBreaker) Execute(operation string, fn func() error) error {
	if b.IsOpen() {
		return NewServiceError(
			ErrorCategoryResource,
			CodeServiceUnavailable,
			fmt.Sprintf("dataset source %s is temporarily unavailable", b.sourceName),
			b.sourceName,
			operation,
			true,
			nil,
		)
	}

	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}

	b.RecordSuccess()
	return nil
}
