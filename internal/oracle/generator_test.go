package oracle

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"go-plan-pipeline/internal/model"
)

const limitAnswer = `{"plan":{"steps":[{"op":"limit","n":2}]},"rationale":"two rows"}`

func testConfig() Config {
	return Config{
		Timeout:          time.Second,
		ContentRetries:   1,
		TransportRetries: 2,
		BackoffBase:      time.Millisecond,
		BackoffMax:       5 * time.Millisecond,
	}
}

func testInput() Input {
	return Input{
		Goal:        "first two rows",
		SampleText:  `[{"a":1},{"a":2},{"a":3}]`,
		FieldNames:  []string{"a"},
		Constraints: model.DefaultConstraints(),
	}
}

func TestGeneratePlanAccepted(t *testing.T) {
	var calls atomic.Int32
	g := NewGenerator(TransportFunc(func(ctx context.Context, system, user string) (string, error) {
		calls.Add(1)
		assert.Contains(t, system, "Operators:")
		assert.Contains(t, user, "Goal: first two rows")
		return limitAnswer, nil
	}), testConfig(), nil)

	res, err := g.GeneratePlan(context.Background(), testInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Failures)
	assert.Equal(t, "two rows", res.Proposal.Rationale)
	require.Len(t, res.Plan.Steps, 1)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGeneratePlanInvalidSyntaxEscalatesWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	g := NewGenerator(TransportFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return `{"plan":{"steps":[{"op":"aggregate","metrics":[{"as":"m","fn":"median","field":"/a"}]}]}}`, nil
	}), testConfig(), nil)

	_, err := g.GeneratePlan(context.Background(), testInput(), nil)
	require.Error(t, err)

	var oerr *Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, CategoryInvalidSyntax, oerr.Category)
	assert.Equal(t, 1, oerr.Attempts)
	assert.Equal(t, []Category{CategoryInvalidSyntax}, oerr.Failures)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGeneratePlanRepairAttemptCarriesFeedback(t *testing.T) {
	var prompts []string
	answers := []string{`not json at all`, limitAnswer}
	g := NewGenerator(TransportFunc(func(_ context.Context, _, user string) (string, error) {
		prompts = append(prompts, user)
		return answers[len(prompts)-1], nil
	}), testConfig(), nil)

	res, err := g.GeneratePlan(context.Background(), testInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []Category{CategoryMalformed}, res.Failures)
	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "previous answer was rejected")
	assert.Contains(t, prompts[1], "previous answer was rejected: malformed_response")
}

func TestGeneratePlanRepeatedFailureEscalates(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig()
	cfg.ContentRetries = 5
	g := NewGenerator(TransportFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return `{"rationale":"no plan here"}`, nil
	}), cfg, nil)

	_, err := g.GeneratePlan(context.Background(), testInput(), nil)
	assert.Equal(t, CategoryContract, CategoryOf(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestGeneratePlanAcceptorRejection(t *testing.T) {
	g := NewGenerator(TransportFunc(func(context.Context, string, string) (string, error) {
		return limitAnswer, nil
	}), testConfig(), nil)

	var seen int
	_, err := g.GeneratePlan(context.Background(), testInput(), func(p *Proposal) (*model.Plan, error) {
		seen++
		return nil, errors.New("plan failed on the sample")
	})
	var oerr *Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, CategoryEvaluation, oerr.Category)
	assert.Equal(t, 2, oerr.Attempts)
	assert.Equal(t, 2, seen)
}

func TestGeneratePlanRetriesRateLimits(t *testing.T) {
	var calls atomic.Int32
	g := NewGenerator(TransportFunc(func(context.Context, string, string) (string, error) {
		if calls.Add(1) < 3 {
			return "", &Error{Category: CategoryRateLimited, Message: "slow down"}
		}
		return limitAnswer, nil
	}), testConfig(), nil)

	res, err := g.GeneratePlan(context.Background(), testInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGeneratePlanTransportBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	cfg := testConfig()
	cfg.TransportRetries = 1
	g := NewGenerator(TransportFunc(func(context.Context, string, string) (string, error) {
		calls.Add(1)
		return "", errors.New("connection refused")
	}), cfg, nil)

	_, err := g.GeneratePlan(context.Background(), testInput(), nil)
	assert.Equal(t, CategoryUnavailable, CategoryOf(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestGeneratePlanTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := NewGenerator(TransportFunc(func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), cfg, nil)

	start := time.Now()
	_, err := g.GeneratePlan(context.Background(), testInput(), nil)
	assert.Equal(t, CategoryTimeout, CategoryOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeneratePlanDisabled(t *testing.T) {
	g := NewGenerator(nil, testConfig(), nil)
	assert.False(t, g.Enabled())

	_, err := g.GeneratePlan(context.Background(), testInput(), nil)
	assert.Equal(t, CategoryDisabled, CategoryOf(err))

	var nilGen *Generator
	assert.False(t, nilGen.Enabled())
}

func TestBuildPrompt(t *testing.T) {
	in := testInput()
	in.Candidates = []string{"/a", "/b"}
	in.FieldHints = []string{"price"}
	in.Constraints = model.Constraints{MaxColumns: 3}

	system, user := BuildPrompt(in, "")
	assert.Contains(t, system, `"op":"group_by"`)
	assert.Contains(t, user, "Other candidate recordPaths: /a, /b")
	assert.Contains(t, user, "Fields the user cares about: price")
	assert.Contains(t, user, "at most 3 output columns")
	assert.Contains(t, user, "Do not use compute, map_value, group_by or aggregate.")
	assert.NotContains(t, user, "rejected")

	in.SampleText = strings.Repeat("x", maxPromptSample*2)
	_, user = BuildPrompt(in, "contract_violation: bad")
	assert.Less(t, len(user), maxPromptSample+1000)
	assert.Contains(t, user, "Your previous answer was rejected: contract_violation: bad")
}

func TestNewGenAITransportNeedsKey(t *testing.T) {
	t.Setenv("PLANNER_TEST_EMPTY_KEY", "")

	_, err := NewGenAITransport(context.Background(), GenAIConfig{APIKeyEnv: "PLANNER_TEST_EMPTY_KEY"})
	assert.Error(t, err)

	_, err = NewGenAITransport(context.Background(), GenAIConfig{})
	assert.Error(t, err)
}
