package guard

import (
	"sync"
	"time"
)

// BudgetLimiter is a sliding-window call budget tracked per key in
// memory. One counter per session/tool pair; windows reset a minute
// after their first call.
type BudgetLimiter struct {
	perMinute int
	mu        sync.Mutex
	counters  map[string]*budgetCounter
}

type budgetCounter struct {
	count    int
	windowAt time.Time
}

// NewBudgetLimiter creates a limiter allowing perMinute calls per key.
func NewBudgetLimiter(perMinute int) *BudgetLimiter {
	return &BudgetLimiter{
		perMinute: perMinute,
		counters:  make(map[string]*budgetCounter),
	}
}

// Allow charges one call against the key's window and reports whether
// it fits the budget.
func (l *BudgetLimiter) Allow(key string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &budgetCounter{count: 1, windowAt: now}
		// Expired windows for other keys are dropped opportunistically
		// to keep the map from growing without bound.
		if len(l.counters) > 4096 {
			for k, v := range l.counters {
				if now.Sub(v.windowAt) >= time.Minute {
					delete(l.counters, k)
				}
			}
		}
		return true
	}

	c.count++
	return c.count <= l.perMinute
}
