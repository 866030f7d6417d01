package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexrv/web-agent/internal/snapshot"
)

func TestReplanReturnsFilteredSteps(t *testing.T) {
	planner := &fakeLLM{altPlan: []string{"Open the comments section", "Scroll to the end"}}
	r := NewReplanner(planner, zerolog.Nop())

	steps, ok := r.Replan(context.Background(), "read the article", []string{"Click next"}, snapshot.Snapshot{}, nil)

	require.True(t, ok)
	assert.Equal(t, []string{"Open the comments section", "Scroll to the end"}, steps)
}

func TestReplanFiltersDuplicateObjectiveSteps(t *testing.T) {
	planner := &fakeLLM{altPlan: []string{
		"Post the comment again",
		"Scroll down to load more content",
	}}
	r := NewReplanner(planner, zerolog.Nop())

	completed := []string{"Open the article", "Post the comment"}
	steps, ok := r.Replan(context.Background(), "post a comment on the article", nil, snapshot.Snapshot{}, completed)

	require.True(t, ok)
	assert.Equal(t, []string{"Scroll down to load more content"}, steps)
}

func TestReplanShortCircuitsWhenPostingObjectiveSatisfied(t *testing.T) {
	planner := &fakeLLM{altPlan: []string{"anything"}}
	r := NewReplanner(planner, zerolog.Nop())

	completed := []string{"Post the first update", "Publish the follow-up"}
	_, ok := r.Replan(context.Background(), "post two updates", nil, snapshot.Snapshot{}, completed)

	assert.False(t, ok)
	assert.Zero(t, planner.altCalls)
}

func TestReplanShortCircuitsWhenExtractionObjectiveSatisfied(t *testing.T) {
	planner := &fakeLLM{altPlan: []string{"anything"}}
	r := NewReplanner(planner, zerolog.Nop())

	completed := []string{"Extract the product table"}
	_, ok := r.Replan(context.Background(), "extract prices into excel", nil, snapshot.Snapshot{}, completed)

	assert.False(t, ok)
	assert.Zero(t, planner.altCalls)
}

func TestReplanFailsWhenPlannerUnavailable(t *testing.T) {
	planner := &fakeLLM{altErr: errors.New("model offline")}
	r := NewReplanner(planner, zerolog.Nop())

	_, ok := r.Replan(context.Background(), "read the article", nil, snapshot.Snapshot{}, nil)
	assert.False(t, ok)
}

func TestReplanFailsWhenOnlyDuplicatesProposed(t *testing.T) {
	planner := &fakeLLM{altPlan: []string{"Post the same comment once more"}}
	r := NewReplanner(planner, zerolog.Nop())

	completed := []string{"Post the comment"}
	_, ok := r.Replan(context.Background(), "post a comment", nil, snapshot.Snapshot{}, completed)

	assert.False(t, ok)
}

func TestTextCategory(t *testing.T) {
	assert.Equal(t, categoryPosting, textCategory("Publish the draft"))
	assert.Equal(t, categoryExtraction, textCategory("Scrape the listing"))
	assert.Equal(t, categoryNone, textCategory("Scroll down"))
}
