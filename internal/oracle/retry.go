package oracle

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// State is the position of a request in the oracle retry state machine.
type State int

const (
	StateFirstAttempt State = iota
	StateRepairAttempt
	StateEscalated
)

func (s State) String() string {
	switch s {
	case StateFirstAttempt:
		return "first_attempt"
	case StateRepairAttempt:
		return "repair_attempt"
	case StateEscalated:
		return "escalated"
	}
	return "unknown"
}

// RetryMachine decides what follows a failed content attempt. A retryable
// failure earns one repair attempt per unit of budget; the same category
// failing twice in a row, a non-retryable category, or an exhausted budget
// escalates to the template fallback.
type RetryMachine struct {
	state  State
	last   Category
	budget int
	used   int
}

// NewRetryMachine starts in StateFirstAttempt with the given content retry
// budget.
func NewRetryMachine(budget int) *RetryMachine {
	if budget < 0 {
		budget = 0
	}
	return &RetryMachine{state: StateFirstAttempt, budget: budget}
}

// State returns the current state.
func (m *RetryMachine) State() State { return m.state }

// Fail records a failed attempt and returns the next state.
func (m *RetryMachine) Fail(cat Category) State {
	if m.state == StateEscalated {
		return m.state
	}
	repeated := m.state == StateRepairAttempt && cat == m.last
	m.last = cat
	if !cat.Retryable() || repeated || m.used >= m.budget {
		m.state = StateEscalated
		return m.state
	}
	m.used++
	m.state = StateRepairAttempt
	return m.state
}

// linearBackoff waits base, 2*base, 3*base ... capped at max, for at most
// retries extra transport attempts.
func linearBackoff(base, max time.Duration, retries int) retry.Backoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if retries < 0 {
		retries = 0
	}
	var attempt int64
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return base * time.Duration(attempt), false
	})
	if max > 0 {
		b = retry.WithCappedDuration(max, b)
	}
	return retry.WithMaxRetries(uint64(retries), b)
}

// callWithRetry runs call, retrying transport failures that are worth
// retrying (rate limits and unavailability) with linear backoff.
func callWithRetry(ctx context.Context, backoff retry.Backoff, call func(context.Context) (string, error)) (string, error) {
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, err := call(ctx)
		if err != nil {
			classified := classifyTransport(ctx, err)
			switch classified.Category {
			case CategoryRateLimited, CategoryUnavailable:
				return retry.RetryableError(classified)
			}
			return classified
		}
		text = out
		return nil
	})
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	return text, nil
}
