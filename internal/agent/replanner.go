package agent

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/llm"
	"github.com/alexrv/web-agent/internal/snapshot"
)

// objectiveCategory groups steps and goals by what they accomplish, so a
// replan never repeats an objective the run already achieved.
type objectiveCategory string

const (
	categoryNone       objectiveCategory = ""
	categoryPosting    objectiveCategory = "posting"
	categoryExtraction objectiveCategory = "extraction"
)

var postingKeywords = []string{
	"post", "publish", "tweet", "comment", "reply", "share", "publicar", "comentar",
}

var extractionKeywords = []string{
	"extract", "scrape", "collect", "gather", "export", "save data", "extraer", "recopilar",
}

func textCategory(text string) objectiveCategory {
	t := strings.ToLower(text)
	for _, kw := range postingKeywords {
		if strings.Contains(t, kw) {
			return categoryPosting
		}
	}
	for _, kw := range extractionKeywords {
		if strings.Contains(t, kw) {
			return categoryExtraction
		}
	}
	return categoryNone
}

func countCategory(steps []string, cat objectiveCategory) int {
	n := 0
	for _, s := range steps {
		if textCategory(s) == cat {
			n++
		}
	}
	return n
}

// Replanner asks the planner for a fresh remaining-step sequence after a
// step exhausts its retries.
type Replanner struct {
	planner llm.Client
	logger  zerolog.Logger
}

func NewReplanner(planner llm.Client, logger zerolog.Logger) *Replanner {
	return &Replanner{planner: planner, logger: logger.With().Str("component", "replanner").Logger()}
}

// Replan returns the filtered replacement steps, or ok=false when replanning
// is pointless: objective heuristically satisfied already, the planner is
// unavailable, or everything it proposed duplicates completed work.
func (r *Replanner) Replan(ctx context.Context, goal string, failedRemaining []string, snap snapshot.Snapshot, completed []string) ([]string, bool) {
	if r.objectiveSatisfied(goal, completed) {
		r.logger.Info().Msg("goal objective already satisfied, skipping replan")
		return nil, false
	}

	steps, err := r.planner.GenerateAlternativePlan(ctx, goal, failedRemaining, snap, completed)
	if err != nil {
		r.logger.Warn().Err(err).Msg("alternative plan unavailable")
		return nil, false
	}

	filtered := r.filterDuplicates(goal, steps, completed)
	if len(filtered) == 0 {
		r.logger.Info().Int("proposed", len(steps)).Msg("replan produced only duplicate steps")
		return nil, false
	}
	return filtered, true
}

// objectiveSatisfied short-circuits the replan when completed steps already
// cover the goal's category: two posting steps for a posting goal, one
// extraction step for an extraction goal.
func (r *Replanner) objectiveSatisfied(goal string, completed []string) bool {
	switch textCategory(goal) {
	case categoryPosting:
		return countCategory(completed, categoryPosting) >= 2
	case categoryExtraction:
		return countCategory(completed, categoryExtraction) >= 1
	}
	return false
}

// filterDuplicates drops proposed steps whose category matches the goal's
// category when that category is already represented in completed steps.
func (r *Replanner) filterDuplicates(goal string, proposed, completed []string) []string {
	goalCat := textCategory(goal)
	if goalCat == categoryNone || countCategory(completed, goalCat) == 0 {
		return proposed
	}
	var out []string
	for _, step := range proposed {
		if textCategory(step) == goalCat {
			r.logger.Debug().Str("step", step).Msg("dropping duplicate objective step")
			continue
		}
		out = append(out, step)
	}
	return out
}
