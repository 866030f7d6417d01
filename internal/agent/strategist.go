// Package agent contains the orchestration core: the per-step retry
// strategist, plan replanner, verification runner and the top-level loop.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/action"
	"github.com/alexrv/web-agent/internal/intervene"
	"github.com/alexrv/web-agent/internal/llm"
	"github.com/alexrv/web-agent/internal/pagestate"
	"github.com/alexrv/web-agent/internal/snapshot"
)

// SnapshotFunc captures the current page. Injected so the core never touches
// the browser directly and tests can substitute canned pages.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// StructureFunc captures richer page structure for the creative attempt.
type StructureFunc func(ctx context.Context) (snapshot.Structure, error)

// ActionRunner executes one concrete action. The executor package provides
// the real implementation.
type ActionRunner interface {
	Execute(ctx context.Context, act action.Action, snap snapshot.Snapshot) action.Result
}

// InterventionDetector decides whether the page blocks automation.
type InterventionDetector interface {
	Detect(ctx context.Context, snap snapshot.Snapshot) intervene.Verdict
}

// StepOutcome is the strategist's report for one plan step.
type StepOutcome int

const (
	StepCompleted StepOutcome = iota
	StepFailed
	StepUserAborted
)

// StepReport carries the outcome plus the last action result for diagnostics.
type StepReport struct {
	Outcome  StepOutcome
	Attempts int
	Result   action.Result
}

// Strategist escalates through up to MaxAttempts strategies for a single
// plan step: direct, alternative framing, then creative framing with page
// structure context.
type Strategist struct {
	planner   llm.Client
	runner    ActionRunner
	detector  InterventionDetector
	handshake intervene.Handshake
	snapshot  SnapshotFunc
	structure StructureFunc

	maxAttempts int
	verifyDelay time.Duration
	logger      zerolog.Logger
}

type StrategistOptions struct {
	MaxAttempts int
	VerifyDelay time.Duration
}

func NewStrategist(
	planner llm.Client,
	runner ActionRunner,
	detector InterventionDetector,
	handshake intervene.Handshake,
	snapshotFn SnapshotFunc,
	structureFn StructureFunc,
	opts StrategistOptions,
	logger zerolog.Logger,
) *Strategist {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = 2 * time.Second
	}
	return &Strategist{
		planner:     planner,
		runner:      runner,
		detector:    detector,
		handshake:   handshake,
		snapshot:    snapshotFn,
		structure:   structureFn,
		maxAttempts: opts.MaxAttempts,
		verifyDelay: opts.VerifyDelay,
		logger:      logger.With().Str("component", "strategist").Logger(),
	}
}

// RunStep drives one plan step through the attempt state machine.
func (s *Strategist) RunStep(ctx context.Context, step string, remaining, completed []string) StepReport {
	var last action.Result
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.logger.Info().Int("attempt", attempt).Str("step", step).Msg("attempting step")

		snap := s.capture(ctx)

		blocked, report := s.clearIntervention(ctx, &snap)
		if blocked {
			return report
		}

		act, err := s.generateAction(ctx, step, attempt, remaining, completed, snap)
		if err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt).Msg("action generation failed")
			last = action.Result{Message: err.Error(), ErrorKind: "planner_error"}
			continue
		}

		if reason, redundant := redundancyReason(act, pagestate.Classify(snap)); redundant {
			s.logger.Info().Str("reason", reason).Msg("skipping redundant action")
			return StepReport{
				Outcome:  StepCompleted,
				Attempts: attempt,
				Result:   action.Result{Success: true, Message: "already satisfied", SkipReason: reason},
			}
		}

		res := s.runner.Execute(ctx, act, snap)
		if !res.Success {
			last = res
			continue
		}
		if res.ObjectiveComplete || !act.RequiresVerification() {
			return StepReport{Outcome: StepCompleted, Attempts: attempt, Result: res}
		}

		if s.verifyAfter(ctx, step, snap) {
			return StepReport{Outcome: StepCompleted, Attempts: attempt, Result: res}
		}
		last = action.Result{
			Message:   fmt.Sprintf("%s executed but page state did not confirm completion", act),
			ErrorKind: "verification_mismatch",
		}
	}
	if last.Message == "" {
		last.Message = "all attempts exhausted"
	}
	return StepReport{Outcome: StepFailed, Attempts: s.maxAttempts, Result: last}
}

// clearIntervention handles a detected login/CAPTCHA wall: handshake, then
// one re-check with a second handshake before giving up on the step. The
// snapshot pointer is refreshed so the caller works with the cleared page.
func (s *Strategist) clearIntervention(ctx context.Context, snap *snapshot.Snapshot) (bool, StepReport) {
	verdict := s.detector.Detect(ctx, *snap)
	if !verdict.Required {
		return false, StepReport{}
	}
	for round := 0; round < 2; round++ {
		cont, err := s.handshake.RequestIntervention(ctx, verdict.Reason, verdict.Type)
		if err != nil || !cont {
			s.logger.Warn().Err(err).Msg("human declined to continue")
			return true, StepReport{
				Outcome: StepUserAborted,
				Result:  action.Result{Message: "run aborted during " + string(verdict.Type) + " intervention"},
			}
		}
		*snap = s.capture(ctx)
		verdict = s.detector.Detect(ctx, *snap)
		if !verdict.Required {
			return false, StepReport{}
		}
	}
	return true, StepReport{
		Outcome: StepFailed,
		Result: action.Result{
			Message:   "page still blocked after two interventions",
			ErrorKind: "intervention_unresolved",
		},
	}
}

func (s *Strategist) generateAction(ctx context.Context, step string, attempt int, remaining, completed []string, snap snapshot.Snapshot) (action.Action, error) {
	req := llm.ActionRequest{
		StepGoal:  step,
		Remaining: remaining,
		Completed: completed,
		Snapshot:  snap,
	}
	switch attempt {
	case 2:
		req.StepGoal = "ALTERNATIVE APPROACH: " + step
	case 3:
		req.StepGoal = "CREATIVE APPROACH - USE ANY MEANS: " + step
		if s.structure != nil {
			if st, err := s.structure(ctx); err == nil {
				req.Structure = &st
			}
		}
	}
	return s.planner.GenerateAction(ctx, req)
}

func (s *Strategist) verifyAfter(ctx context.Context, step string, before snapshot.Snapshot) bool {
	sleepCtx(ctx, s.verifyDelay)
	after := s.capture(ctx)
	ok, err := s.planner.VerifyStepCompletion(ctx, step, before, after)
	if err != nil {
		s.logger.Warn().Err(err).Msg("completion verification unavailable")
		return false
	}
	return ok
}

// capture never fails the step: an unreadable page degrades to an empty
// snapshot, which downstream heuristics tolerate.
func (s *Strategist) capture(ctx context.Context) snapshot.Snapshot {
	snap, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("snapshot unavailable, using empty page view")
		return snapshot.Snapshot{}
	}
	return snap
}

// redundancyReason reports whether the page is already in the action's
// target state, e.g. issuing a search while results are already showing.
func redundancyReason(act action.Action, state pagestate.State) (string, bool) {
	onResults := state.Label == pagestate.ResultsPage || state.Label == pagestate.AmazonSearchResults
	if !onResults {
		return "", false
	}
	if !isSearchAction(act) {
		return "", false
	}
	return "redundant: results already displayed for a search-type action", true
}

func isSearchAction(act action.Action) bool {
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), "search")
	}
	switch act.Kind {
	case action.KindEnterText, action.KindEnterTextNoSubmit:
		return contains(act.Selector) || contains(act.Text)
	case action.KindClickButton:
		for _, kw := range act.Keywords {
			if contains(kw) {
				return true
			}
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
