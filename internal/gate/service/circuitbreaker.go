package service

import (
	"sync"
	"time"
)

// breaker tracks consecutive store failures so a dead store stops costing a
// confirmation round trip per check. While open, escalated checks are denied
// immediately (fail closed); after the cooldown a probe is let through, and
// enough consecutive probe successes close the circuit again.
type breaker struct {
	mu           sync.Mutex
	state        breakerState
	failureCount int
	successCount int
	openedAt     time.Time

	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	clock            func() time.Time
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func newBreaker(cooldown time.Duration) *breaker {
	return &breaker{
		failureThreshold: 5,
		successThreshold: 3,
		cooldown:         cooldown,
		clock:            time.Now,
	}
}

// Allow reports whether a store call may proceed.
func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.clock().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount = 0
	b.failureCount++
	if b.state == breakerHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = b.clock()
	}
}

func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = breakerClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case breakerClosed:
		b.failureCount = 0
	}
}
