package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-plan-pipeline/internal/model"
)

// Config bounds how the generator talks to the oracle.
type Config struct {
	Timeout           time.Duration
	ContentRetries    int
	TransportRetries  int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	RequestsPerSecond float64
}

// Proposal is a decoded oracle answer before acceptance.
type Proposal struct {
	Plan           *model.Plan
	Rationale      string
	DeclaredSchema json.RawMessage
	Raw            string
}

// Acceptor checks a proposal against the request and returns the plan to
// use. Errors that are not *Error are treated as evaluation failures.
type Acceptor func(p *Proposal) (*model.Plan, error)

// Result is an accepted oracle plan.
type Result struct {
	Plan     *model.Plan
	Proposal *Proposal
	Attempts int
	Failures []Category
	Latency  time.Duration
}

// Generator asks the oracle for plans and absorbs its failures: every call
// ends with an accepted plan or a classified *Error.
type Generator struct {
	transport Transport
	cfg       Config
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewGenerator creates a generator. A nil transport yields a generator that
// always reports CategoryDisabled.
func NewGenerator(transport Transport, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Generator{
		transport: transport,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Enabled reports whether the generator has a transport.
func (g *Generator) Enabled() bool {
	return g != nil && g.transport != nil
}

// GeneratePlan proposes a plan for in and runs it through accept. Retryable
// content failures get a repair attempt with the error fed back into the
// prompt; the retry state machine decides when to give up.
func (g *Generator) GeneratePlan(ctx context.Context, in Input, accept Acceptor) (*Result, error) {
	start := time.Now()
	if !g.Enabled() {
		return nil, &Error{Category: CategoryDisabled, Message: "no oracle transport configured"}
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	machine := NewRetryMachine(g.cfg.ContentRetries)
	var failures []Category
	feedback := ""
	for attempt := 1; ; attempt++ {
		proposal, plan, err := g.attempt(ctx, in, feedback, accept)
		if err == nil {
			latency := time.Since(start)
			g.logger.Info("oracle plan accepted",
				zap.Int("attempt", attempt),
				zap.Duration("latency", latency),
				zap.Int("steps", len(plan.Steps)))
			return &Result{Plan: plan, Proposal: proposal, Attempts: attempt, Failures: failures, Latency: latency}, nil
		}

		var oerr *Error
		if !errors.As(err, &oerr) {
			oerr = newError(CategoryEvaluation, err, "plan rejected")
		}
		failures = append(failures, oerr.Category)
		next := machine.Fail(oerr.Category)
		g.logger.Warn("oracle attempt failed",
			zap.Int("attempt", attempt),
			zap.String("category", string(oerr.Category)),
			zap.String("next", next.String()),
			zap.Error(err))

		if next == StateEscalated {
			out := *oerr
			out.Attempts = attempt
			out.Failures = failures
			out.Latency = time.Since(start)
			return nil, &out
		}
		feedback = fmt.Sprintf("%s: %s", oerr.Category, oerr.Error())
	}
}

func (g *Generator) attempt(ctx context.Context, in Input, feedback string, accept Acceptor) (*Proposal, *model.Plan, error) {
	system, user := BuildPrompt(in, feedback)
	backoff := linearBackoff(g.cfg.BackoffBase, g.cfg.BackoffMax, g.cfg.TransportRetries)
	text, err := callWithRetry(ctx, backoff, func(ctx context.Context) (string, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", newError(CategoryTimeout, err, "rate limiter wait aborted")
		}
		return g.transport.CompleteWithSystem(ctx, system, user)
	})
	if err != nil {
		return nil, nil, err
	}

	if what, bad := DetectInvalidSyntax(text); bad {
		return nil, nil, newError(CategoryInvalidSyntax, nil, "%s", what)
	}
	env, err := ParseEnvelope(text)
	if err != nil {
		return nil, nil, err
	}
	plan, err := env.DecodePlan()
	if err != nil {
		return nil, nil, err
	}

	proposal := &Proposal{Plan: plan, Rationale: env.Rationale, DeclaredSchema: env.Schema, Raw: text}
	if accept == nil {
		return proposal, plan, nil
	}
	accepted, err := accept(proposal)
	if err != nil {
		return nil, nil, err
	}
	return proposal, accepted, nil
}
