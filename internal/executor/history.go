package executor

import (
	"github.com/alexrv/web-agent/internal/action"
)

const (
	DefaultHistorySize = 20

	// knownBadThreshold is how many failures mark a selector dead for the
	// rest of the run.
	knownBadThreshold = 2
)

// Entry is one recorded (action, result) pair.
type Entry struct {
	Action action.Action
	Result action.Result
}

// History is the bounded action log plus per-selector failure counters.
// Appended to by the executor, read by the strategists; never shared across
// goroutines.
type History struct {
	entries      []Entry
	maxEntries   int
	failures     map[string]int
	failedTotal  int
	successTotal int
}

func NewHistory(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = DefaultHistorySize
	}
	return &History{
		maxEntries: maxEntries,
		failures:   make(map[string]int),
	}
}

func (h *History) Record(act action.Action, res action.Result) {
	h.entries = append(h.entries, Entry{Action: act, Result: res})
	if len(h.entries) > h.maxEntries {
		h.entries = h.entries[len(h.entries)-h.maxEntries:]
	}
	if res.Success {
		h.successTotal++
		return
	}
	h.failedTotal++
	if act.Selector != "" {
		h.failures[act.Selector]++
	}
}

// KnownBad reports whether the selector has failed often enough that
// retrying it within this run is pointless.
func (h *History) KnownBad(selector string) bool {
	return selector != "" && h.failures[selector] >= knownBadThreshold
}

// Recent returns up to n most recent entries, oldest first.
func (h *History) Recent(n int) []Entry {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	return h.entries[len(h.entries)-n:]
}

func (h *History) FailureCount() int { return h.failedTotal }
func (h *History) SuccessCount() int { return h.successTotal }
