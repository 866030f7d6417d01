package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/llm"
)

// Evaluator runs a script in the live page. Satisfied by the browser driver.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// Verifier handles VERIFY: plan steps. The planner writes a boolean page
// check, the driver runs it; any failure along the way fails the check, not
// the run.
type Verifier struct {
	planner   llm.Client
	evaluator Evaluator
	logger    zerolog.Logger
}

func NewVerifier(planner llm.Client, evaluator Evaluator, logger zerolog.Logger) *Verifier {
	return &Verifier{
		planner:   planner,
		evaluator: evaluator,
		logger:    logger.With().Str("component", "verifier").Logger(),
	}
}

func (v *Verifier) Verify(ctx context.Context, requirement, pageContext string) bool {
	script, err := v.planner.GenerateVerificationCheck(ctx, requirement, pageContext)
	if err != nil {
		v.logger.Warn().Err(err).Str("requirement", requirement).Msg("no verification script available")
		return false
	}
	var ok bool
	if err := v.evaluator.Evaluate(ctx, script, &ok); err != nil {
		v.logger.Warn().Err(err).Str("requirement", requirement).Msg("verification script failed")
		return false
	}
	v.logger.Info().Bool("satisfied", ok).Str("requirement", requirement).Msg("verification check ran")
	return ok
}
