package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/action"
	"github.com/alexrv/web-agent/internal/intervene"
	"github.com/alexrv/web-agent/internal/llm"
	"github.com/alexrv/web-agent/internal/snapshot"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusDone     Status = "done"
	StatusAborted  Status = "aborted"
	StatusCanceled Status = "canceled"
)

// Step markers recognized in plan text.
const (
	verifyPrefix       = "VERIFY:"
	interventionMarker = "MANUAL_INTERVENTION"
)

// Report is what a finished run looks like to the caller. LastResult keeps
// the final diagnostic context so a human can pick up where the agent
// stopped.
type Report struct {
	RunID      string
	Status     Status
	Message    string
	Plan       []string
	Completed  []string
	LastResult action.Result
}

// StepRunner is the strategist seam used by the loop.
type StepRunner interface {
	RunStep(ctx context.Context, step string, remaining, completed []string) StepReport
}

// PlanRevisor is the replanner seam.
type PlanRevisor interface {
	Replan(ctx context.Context, goal string, failedRemaining []string, snap snapshot.Snapshot, completed []string) ([]string, bool)
}

// StepVerifier handles verification-only steps.
type StepVerifier interface {
	Verify(ctx context.Context, requirement, pageContext string) bool
}

// Loop drives a plan from generation to a terminal state.
type Loop struct {
	planner   llm.Client
	runner    StepRunner
	revisor   PlanRevisor
	verifier  StepVerifier
	handshake intervene.Handshake
	snapshot  SnapshotFunc

	maxSteps   int
	maxReplans int
	stepDelay  time.Duration
	logger     zerolog.Logger
}

type LoopOptions struct {
	MaxSteps   int
	MaxReplans int
	StepDelay  time.Duration
}

func NewLoop(
	planner llm.Client,
	runner StepRunner,
	revisor PlanRevisor,
	verifier StepVerifier,
	handshake intervene.Handshake,
	snapshotFn SnapshotFunc,
	opts LoopOptions,
	logger zerolog.Logger,
) *Loop {
	if opts.MaxSteps < 1 {
		opts.MaxSteps = 40
	}
	if opts.MaxReplans < 0 {
		opts.MaxReplans = 0
	}
	return &Loop{
		planner:    planner,
		runner:     runner,
		revisor:    revisor,
		verifier:   verifier,
		handshake:  handshake,
		snapshot:   snapshotFn,
		maxSteps:   opts.MaxSteps,
		maxReplans: opts.MaxReplans,
		stepDelay:  opts.StepDelay,
		logger:     logger.With().Str("component", "loop").Logger(),
	}
}

// Run executes the goal to a terminal state. Cancellation is observed
// between steps only.
func (l *Loop) Run(ctx context.Context, goal string) Report {
	report := Report{RunID: uuid.NewString()}
	logger := l.logger.With().Str("run_id", report.RunID).Logger()
	logger.Info().Str("goal", goal).Msg("run starting")

	plan, err := l.planner.GeneratePlan(ctx, goal)
	if err != nil {
		report.Status = StatusAborted
		report.Message = fmt.Sprintf("plan generation failed: %v", err)
		return report
	}
	report.Plan = plan
	logger.Info().Strs("plan", plan).Msg("plan generated")

	var (
		idx      int
		stepsRun int
		replans  int
	)
	for idx < len(report.Plan) {
		if ctx.Err() != nil {
			report.Status = StatusCanceled
			report.Message = "canceled between steps"
			return report
		}
		if stepsRun >= l.maxSteps {
			report.Status = StatusAborted
			report.Message = fmt.Sprintf("step budget of %d exhausted", l.maxSteps)
			return report
		}

		step := report.Plan[idx]
		stepsRun++
		logger.Info().Int("index", idx).Str("step", step).Msg("running step")

		sr := l.runOne(ctx, step, report.Plan[idx+1:], report.Completed)
		report.LastResult = sr.Result

		switch sr.Outcome {
		case StepUserAborted:
			report.Status = StatusCanceled
			report.Message = "human aborted during intervention"
			return report

		case StepCompleted:
			report.Completed = append(report.Completed, step)
			if sr.Result.ObjectiveComplete {
				report.Status = StatusDone
				report.Message = "objective completed early: " + sr.Result.Message
				return report
			}
			idx++
			sleepCtx(ctx, l.stepDelay)

		case StepFailed:
			logger.Warn().Str("step", step).Str("detail", sr.Result.Message).Msg("step failed, replanning")
			if replans >= l.maxReplans {
				report.Status = StatusAborted
				report.Message = fmt.Sprintf("replan budget of %d exhausted; last failure: %s", l.maxReplans, sr.Result.Message)
				return report
			}
			replans++
			snap := l.captureForReplan(ctx)
			newSteps, ok := l.revisor.Replan(ctx, goal, report.Plan[idx:], snap, report.Completed)
			if !ok {
				report.Status = StatusAborted
				report.Message = "no viable replan; last failure: " + sr.Result.Message
				return report
			}
			// Completed prefix is preserved verbatim; only the tail changes.
			report.Plan = append(append([]string{}, report.Completed...), newSteps...)
			idx = len(report.Completed)
			logger.Info().Strs("plan", report.Plan).Msg("plan revised")
		}
	}

	report.Status = StatusDone
	report.Message = "plan completed"
	logger.Info().Int("steps", len(report.Completed)).Msg("run finished")
	return report
}

// runOne dispatches by step type: verification-only, declared manual
// intervention, or a normal actionable step for the strategist.
func (l *Loop) runOne(ctx context.Context, step string, remaining, completed []string) StepReport {
	switch {
	case strings.HasPrefix(step, verifyPrefix):
		requirement := strings.TrimSpace(strings.TrimPrefix(step, verifyPrefix))
		snap := l.captureForReplan(ctx)
		if l.verifier != nil && l.verifier.Verify(ctx, requirement, snap.URL+" "+snap.Title) {
			return StepReport{Outcome: StepCompleted, Result: action.Result{Success: true, Message: "verified: " + requirement}}
		}
		return StepReport{Outcome: StepFailed, Result: action.Result{
			Message:   "verification failed: " + requirement,
			ErrorKind: "verification_mismatch",
		}}

	case strings.Contains(step, interventionMarker):
		cont, err := l.handshake.RequestIntervention(ctx, step, intervene.TypeLogin)
		if err != nil || !cont {
			return StepReport{Outcome: StepUserAborted, Result: action.Result{Message: "human aborted declared intervention"}}
		}
		return StepReport{Outcome: StepCompleted, Result: action.Result{Success: true, Message: "intervention handled"}}

	default:
		return l.runner.RunStep(ctx, step, remaining, completed)
	}
}

func (l *Loop) captureForReplan(ctx context.Context) snapshot.Snapshot {
	if l.snapshot == nil {
		return snapshot.Snapshot{}
	}
	snap, err := l.snapshot(ctx)
	if err != nil {
		return snapshot.Snapshot{}
	}
	return snap
}
