// Package executor turns abstract actions into live browser interactions and
// reports structured results. It owns the only failure state that survives a
// single call, the shared action history.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/action"
	"github.com/alexrv/web-agent/internal/browser"
	"github.com/alexrv/web-agent/internal/snapshot"
)

const (
	locateTimeout   = 2 * time.Second
	maxCandidates   = 10
	settleAfterFill = 200 * time.Millisecond
)

// genericInputSelectors is the fallback chain tried in order when the
// primary locator of a text action does not resolve.
var genericInputSelectors = []string{
	"input[type='text']",
	"input[type='search']",
	"textarea",
	"[contenteditable='true']",
	"input:not([type='hidden'])",
}

// Exporter receives extracted rows and produces the final document. The
// implementation lives in the export package.
type Exporter interface {
	AppendRows(ctx context.Context, rows []map[string]string) error
	Consolidate(ctx context.Context, goal string) (string, error)
}

// Executor executes one action at a time against the live page.
type Executor struct {
	driver   browser.Driver
	exporter Exporter
	history  *History
	goal     string
	logger   zerolog.Logger
}

func New(driver browser.Driver, exporter Exporter, history *History, goal string, logger zerolog.Logger) *Executor {
	if history == nil {
		history = NewHistory(DefaultHistorySize)
	}
	return &Executor{
		driver:   driver,
		exporter: exporter,
		history:  history,
		goal:     goal,
		logger:   logger.With().Str("component", "executor").Logger(),
	}
}

func (e *Executor) History() *History { return e.history }

// Execute dispatches by action kind. Every outcome, success or failure, is
// recorded in the history before returning.
func (e *Executor) Execute(ctx context.Context, act action.Action, snap snapshot.Snapshot) action.Result {
	var res action.Result
	switch act.Kind {
	case action.KindClick:
		res = e.click(ctx, act, snap)
	case action.KindEnterText:
		res = e.enterText(ctx, act, snap, true)
	case action.KindEnterTextNoSubmit:
		res = e.enterText(ctx, act, snap, false)
	case action.KindClickButton:
		res = e.clickButton(ctx, act, snap)
	case action.KindNavigate:
		res = e.navigate(ctx, act)
	case action.KindWait:
		res = e.wait(ctx, act)
	case action.KindScroll:
		res = e.scroll(ctx, act)
	case action.KindExtract:
		res = e.extract(ctx)
	case action.KindFinalize:
		res = e.finalize(ctx)
	default:
		res = action.Result{
			Message:   fmt.Sprintf("unsupported action kind %q", act.Kind),
			ErrorKind: "unsupported_action",
		}
	}
	e.history.Record(act, res)
	e.logger.Info().
		Str("action", act.String()).
		Bool("success", res.Success).
		Str("strategy", res.Strategy).
		Str("error_kind", res.ErrorKind).
		Msg("action executed")
	return res
}

// click resolves the target through a short list of locator normalizations
// and attempts the click through two mechanisms before giving up.
func (e *Executor) click(ctx context.Context, act action.Action, snap snapshot.Snapshot) action.Result {
	if e.history.KnownBad(act.Selector) {
		return action.Result{
			Message:    fmt.Sprintf("selector %q already failed repeatedly this run", act.Selector),
			ErrorKind:  "known_bad_selector",
			Candidates: clickableCandidates(snap),
		}
	}

	var lastErr error
	for _, sel := range normalizeSelector(act.Selector) {
		if err := e.driver.WaitVisible(ctx, sel, locateTimeout); err != nil {
			lastErr = err
			continue
		}
		_ = e.driver.ScrollIntoView(ctx, sel)

		if err := e.driver.Click(ctx, sel); err == nil {
			return action.Result{Success: true, Message: "clicked " + sel, Strategy: "direct_click"}
		} else {
			lastErr = err
		}
		if err := e.driver.DispatchClick(ctx, sel); err == nil {
			return action.Result{Success: true, Message: "clicked " + sel, Strategy: "dispatch_click"}
		} else {
			lastErr = err
		}
	}
	return action.Result{
		Message:    fmt.Sprintf("could not click %q: %v", act.Selector, lastErr),
		ErrorKind:  browser.Kind(lastErr),
		Candidates: clickableCandidates(snap),
	}
}

// enterText writes into the primary locator or, when that fails, the first
// editable element from the generic fallback chain.
func (e *Executor) enterText(ctx context.Context, act action.Action, snap snapshot.Snapshot, submit bool) action.Result {
	selectors := make([]string, 0, 1+len(genericInputSelectors))
	if act.Selector != "" && !e.history.KnownBad(act.Selector) {
		selectors = append(selectors, act.Selector)
	}
	selectors = append(selectors, genericInputSelectors...)

	var lastErr error
	for i, sel := range selectors {
		editable, err := e.driver.IsEditable(ctx, sel)
		if err != nil || !editable {
			if err != nil {
				lastErr = err
			} else {
				lastErr = fmt.Errorf("%w: %s", browser.ErrNotInteractable, sel)
			}
			continue
		}
		if err := e.driver.Fill(ctx, sel, act.Text); err != nil {
			lastErr = err
			continue
		}
		if submit {
			if err := e.driver.PressEnter(ctx, sel); err != nil {
				lastErr = err
				continue
			}
		}
		sleepCtx(ctx, settleAfterFill)
		if !e.verifyWritten(ctx, sel, act.Text) {
			lastErr = fmt.Errorf("text not present in %s after write", sel)
			continue
		}
		strategy := "primary_selector"
		if i > 0 || sel != act.Selector {
			strategy = "generic_fallback"
		}
		return action.Result{Success: true, Message: "entered text into " + sel, Strategy: strategy}
	}
	return action.Result{
		Message:    fmt.Sprintf("could not enter text via %q: %v", act.Selector, lastErr),
		ErrorKind:  browser.Kind(lastErr),
		Candidates: inputCandidates(snap),
	}
}

// verifyWritten checks the element's content contains the requested text.
// Containment, not equality: contenteditable widgets normalize whitespace.
func (e *Executor) verifyWritten(ctx context.Context, selector, want string) bool {
	got, err := e.driver.ReadText(ctx, selector)
	if err != nil {
		return false
	}
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return strings.Contains(norm(got), norm(want))
}

func (e *Executor) clickButton(ctx context.Context, act action.Action, snap snapshot.Snapshot) action.Result {
	match, reason := pickButton(snap.Elements, act.Keywords)
	if match == nil {
		return action.Result{
			Message:    "no clickable element on page",
			ErrorKind:  "element_not_found",
			Candidates: clickableCandidates(snap),
		}
	}
	sel := match.Selector
	if sel == "" {
		return action.Result{
			Message:    fmt.Sprintf("matched %q but it has no usable selector", match.Text),
			ErrorKind:  "element_not_found",
			Candidates: clickableCandidates(snap),
		}
	}
	var lastErr error
	if err := e.driver.Click(ctx, sel); err == nil {
		return action.Result{
			Success:  true,
			Message:  fmt.Sprintf("clicked %q (%s)", match.Text, reason),
			Strategy: "keyword_match",
		}
	} else {
		lastErr = err
	}
	if err := e.driver.DispatchClick(ctx, sel); err == nil {
		return action.Result{
			Success:  true,
			Message:  fmt.Sprintf("clicked %q (%s)", match.Text, reason),
			Strategy: "keyword_match_dispatch",
		}
	} else {
		lastErr = err
	}
	return action.Result{
		Message:    fmt.Sprintf("matched %q but click failed: %v", match.Text, lastErr),
		ErrorKind:  browser.Kind(lastErr),
		Candidates: clickableCandidates(snap),
	}
}

// navigate kicks off the page load and reports success immediately.
// Completion is confirmed, when required, by a later verification pass.
func (e *Executor) navigate(ctx context.Context, act action.Action) action.Result {
	if err := e.driver.Navigate(ctx, act.URL); err != nil {
		e.logger.Warn().Err(err).Str("url", act.URL).Msg("navigation reported an error")
	}
	return action.Result{Success: true, Message: "navigation started: " + act.URL}
}

func (e *Executor) wait(ctx context.Context, act action.Action) action.Result {
	sleepCtx(ctx, act.Duration)
	return action.Result{Success: true, Message: fmt.Sprintf("waited %s", act.Duration)}
}

func (e *Executor) scroll(ctx context.Context, act action.Action) action.Result {
	dir := act.Direction
	if dir == "" {
		dir = "down"
	}
	if err := e.driver.Scroll(ctx, dir, act.Pixels); err != nil {
		e.logger.Warn().Err(err).Msg("scroll reported an error")
	}
	return action.Result{Success: true, Message: fmt.Sprintf("scrolled %s", dir)}
}

func (e *Executor) extract(ctx context.Context) action.Result {
	if e.exporter == nil {
		return action.Result{Message: "no exporter configured", ErrorKind: "unsupported_action"}
	}
	var rows []map[string]string
	if err := e.driver.Evaluate(ctx, extractionScript, &rows); err != nil {
		return action.Result{
			Message:   fmt.Sprintf("page extraction failed: %v", err),
			ErrorKind: browser.Kind(err),
		}
	}
	if len(rows) == 0 {
		return action.Result{Message: "no content rows found on page", ErrorKind: "empty_extraction"}
	}
	if err := e.exporter.AppendRows(ctx, rows); err != nil {
		return action.Result{Message: fmt.Sprintf("store rows: %v", err), ErrorKind: "export_error"}
	}
	return action.Result{Success: true, Message: fmt.Sprintf("extracted %d rows", len(rows))}
}

// finalize consolidates everything extracted so far. A successful finalize
// means the user's goal is satisfied, which the orchestration loop treats as
// an early-termination signal.
func (e *Executor) finalize(ctx context.Context) action.Result {
	if e.exporter == nil {
		return action.Result{Message: "no exporter configured", ErrorKind: "unsupported_action"}
	}
	path, err := e.exporter.Consolidate(ctx, e.goal)
	if err != nil {
		return action.Result{Message: fmt.Sprintf("consolidate: %v", err), ErrorKind: "export_error"}
	}
	return action.Result{
		Success:           true,
		Message:           "output written to " + path,
		ObjectiveComplete: true,
	}
}

// normalizeSelector returns the selector plus cheap normalizations worth
// trying when the literal form misses: stripped outer quotes, lower-cased.
func normalizeSelector(sel string) []string {
	out := []string{sel}
	seen := map[string]bool{sel: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	trimmed := strings.Trim(sel, `"'`)
	add(trimmed)
	add(strings.ToLower(sel))
	add(strings.ToLower(trimmed))
	return out
}

func clickableCandidates(snap snapshot.Snapshot) []action.Candidate {
	var out []action.Candidate
	for _, el := range snap.Elements {
		if !isClickable(el) {
			continue
		}
		out = append(out, action.Candidate{Tag: el.Tag, Text: el.Text, Selector: el.Selector})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

func inputCandidates(snap snapshot.Snapshot) []action.Candidate {
	var out []action.Candidate
	for _, el := range snap.Elements {
		if el.Tag != "input" && el.Tag != "textarea" && el.Type != "textbox" {
			continue
		}
		out = append(out, action.Candidate{Tag: el.Tag, Text: el.Text, Selector: el.Selector})
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
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
