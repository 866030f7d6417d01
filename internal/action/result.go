package action

import (
	"fmt"
	"strings"
)

// Candidate describes an element offered as a diagnostic alternative when the
// requested target could not be used.
type Candidate struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Selector string `json:"selector"`
}

// Result is the structured outcome of one action execution.
type Result struct {
	Success           bool
	Message           string
	ErrorKind         string
	Strategy          string
	SkipReason        string
	Candidates        []Candidate
	ObjectiveComplete bool
}

// Skipped reports whether the executor declined to run the action because the
// page was already in the target state.
func (r Result) Skipped() bool { return r.SkipReason != "" }

// Feedback renders the result as natural language for the planner. Failed
// results list up to five candidate elements so the next attempt can pick a
// working locator.
func (r Result) Feedback(act Action) string {
	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "ACTION SUCCESS: %s completed.", act)
		if r.Strategy != "" {
			fmt.Fprintf(&b, " Strategy used: %s.", r.Strategy)
		}
		if r.SkipReason != "" {
			fmt.Fprintf(&b, " Skipped: %s.", r.SkipReason)
		}
		return b.String()
	}
	fmt.Fprintf(&b, "ACTION FAILED: %s.", act)
	if r.ErrorKind != "" {
		fmt.Fprintf(&b, " Error type: %s.", r.ErrorKind)
	}
	if r.Message != "" {
		fmt.Fprintf(&b, " Detail: %s.", r.Message)
	}
	if len(r.Candidates) > 0 {
		b.WriteString(" Available alternatives:")
		for i, c := range r.Candidates {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, " [%s %q selector=%s]", c.Tag, c.Text, c.Selector)
		}
	}
	return b.String()
}
