// Package llm is the planning collaborator: it turns goals into plans,
// plan steps into concrete actions, and snapshots into judgments. Calls are
// plain request/response; retry policy lives with the callers.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/action"
	"github.com/alexrv/web-agent/internal/intervene"
	"github.com/alexrv/web-agent/internal/snapshot"
)

// Client is what the orchestration core sees of the language model.
type Client interface {
	GeneratePlan(ctx context.Context, goal string) ([]string, error)
	GenerateAction(ctx context.Context, req ActionRequest) (action.Action, error)
	GenerateAlternativeSelectors(ctx context.Context, failedSelector, kind string, snap snapshot.Snapshot) ([]string, error)
	VerifyStepCompletion(ctx context.Context, task string, before, after snapshot.Snapshot) (bool, error)
	GenerateAlternativePlan(ctx context.Context, goal string, failedSteps []string, snap snapshot.Snapshot, completed []string) ([]string, error)
	AnalyzePageForIntervention(ctx context.Context, elements []snapshot.Element) (intervene.Verdict, error)
	GenerateVerificationCheck(ctx context.Context, requirement, pageContext string) (string, error)
}

// ActionRequest carries everything the model needs to emit one action.
type ActionRequest struct {
	StepGoal  string
	Remaining []string
	Completed []string
	Snapshot  snapshot.Snapshot
	// Structure is only supplied on the creative attempt.
	Structure *snapshot.Structure
}

// completer is the provider primitive both SDK clients implement.
type completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// NewClient selects a provider backend. Supported providers: "anthropic",
// "openai", "groq" (openai-compatible with a different base URL).
func NewClient(provider, model string, logger zerolog.Logger) (Client, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	}
	if provider == "" {
		provider = "anthropic"
	}

	var (
		c   completer
		err error
	)
	switch provider {
	case "anthropic":
		c, err = newAnthropic(model)
	case "openai", "groq":
		c, err = newOpenAI(provider, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic', 'openai' or 'groq')", provider)
	}
	if err != nil {
		return nil, err
	}
	return &planner{
		completer: c,
		logger:    logger.With().Str("component", "llm").Str("provider", c.Name()).Logger(),
	}, nil
}

type planner struct {
	completer completer
	logger    zerolog.Logger
}

const planSystem = `You are a browser automation planner. You break a user's goal
into short, concrete, ordered steps a browser agent can execute. Respond with
a single JSON object and NOTHING else.`

const actionSystem = `You are a browser automation agent. Given the current page
and one plan step, respond with exactly one action as a single JSON object:
{"action":"<kind>","parameters":{...}}
Kinds and parameters:
  click_element      {selector}
  enter_text         {selector, text}
  enter_text_no_enter{selector, text}
  click_button       {keywords: [..]}
  navigate_to        {url}
  wait               {seconds}
  scroll             {direction, pixels}
  extract_data       {}
  finalize_extraction{}
Pick selectors from the provided elements. NOTHING outside the JSON object.`

func (p *planner) GeneratePlan(ctx context.Context, goal string) ([]string, error) {
	prompt := fmt.Sprintf(`Goal: %s

Produce the step list as {"steps": ["...", "..."]}. Keep each step a single
browser action or verification. Prefix verification-only steps with "VERIFY:".`, goal)

	text, err := p.completer.Complete(ctx, planSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	return parseSteps(text)
}

func (p *planner) GenerateAction(ctx context.Context, req ActionRequest) (action.Action, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current step: %s\n\n", req.StepGoal)
	if len(req.Completed) > 0 {
		fmt.Fprintf(&b, "Completed steps:\n%s\n\n", bulleted(req.Completed))
	}
	if len(req.Remaining) > 0 {
		fmt.Fprintf(&b, "Remaining steps:\n%s\n\n", bulleted(req.Remaining))
	}
	fmt.Fprintf(&b, "Page:\n%s\n", req.Snapshot.String())
	if req.Structure != nil {
		fmt.Fprintf(&b, "\nPage structure:\n")
		for _, h := range req.Structure.Headings {
			fmt.Fprintf(&b, "h%d %s\n", h.Level, h.Text)
		}
		for _, blk := range req.Structure.RepeatedBlocks {
			fmt.Fprintf(&b, "repeated: %s\n", blk)
		}
	}

	text, err := p.completer.Complete(ctx, actionSystem, b.String())
	if err != nil {
		return action.Action{}, fmt.Errorf("generate action: %w", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return action.Action{}, fmt.Errorf("generate action: %w: raw=%q", err, clip(text, 200))
	}
	act, err := action.Parse([]byte(raw))
	if err != nil {
		return action.Action{}, fmt.Errorf("generate action: %w", err)
	}
	p.logger.Debug().Str("action", act.String()).Msg("action generated")
	return act, nil
}

func (p *planner) GenerateAlternativeSelectors(ctx context.Context, failedSelector, kind string, snap snapshot.Snapshot) ([]string, error) {
	prompt := fmt.Sprintf(`The selector %q failed for a %s action.

Page:
%s

Propose up to 5 alternative CSS selectors for the same target, most likely
first, as {"selectors": ["...", "..."]}.`, failedSelector, kind, snap.String())

	text, err := p.completer.Complete(ctx, planSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("alternative selectors: %w", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("alternative selectors: %w", err)
	}
	var out struct {
		Selectors []string `json:"selectors"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("alternative selectors: %w", err)
	}
	return out.Selectors, nil
}

func (p *planner) VerifyStepCompletion(ctx context.Context, task string, before, after snapshot.Snapshot) (bool, error) {
	prompt := fmt.Sprintf(`Task: %s

Page before:
URL: %s
Title: %s

Page after:
URL: %s
Title: %s
Elements: %d

Did the action complete the task? Answer {"complete": true|false}.`,
		task, before.URL, before.Title, after.URL, after.Title, len(after.Elements))

	text, err := p.completer.Complete(ctx, planSystem, prompt)
	if err != nil {
		return false, fmt.Errorf("verify step: %w", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return false, fmt.Errorf("verify step: %w", err)
	}
	var out struct {
		Complete bool `json:"complete"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return false, fmt.Errorf("verify step: %w", err)
	}
	return out.Complete, nil
}

func (p *planner) GenerateAlternativePlan(ctx context.Context, goal string, failedSteps []string, snap snapshot.Snapshot, completed []string) ([]string, error) {
	prompt := fmt.Sprintf(`Goal: %s

These steps failed after all retries:
%s

Already completed:
%s

Current page: %s (%s)

Propose a different sequence of steps to finish the goal, skipping anything
already completed, as {"steps": ["...", "..."]}.`,
		goal, bulleted(failedSteps), bulleted(completed), snap.URL, snap.Title)

	text, err := p.completer.Complete(ctx, planSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("alternative plan: %w", err)
	}
	return parseSteps(text)
}

func (p *planner) AnalyzePageForIntervention(ctx context.Context, elements []snapshot.Element) (intervene.Verdict, error) {
	var b strings.Builder
	b.WriteString(`Does this page block automation behind a login wall or CAPTCHA?
Answer {"requires_intervention": true|false, "type": "login"|"captcha"|"none", "reason": "..."}.

Elements:
`)
	for i, el := range elements {
		fmt.Fprintf(&b, "%d) tag=%s type=%s name=%s text=%q aria=%s\n", i+1, el.Tag, el.Type, el.Name, el.Text, el.Aria)
	}

	text, err := p.completer.Complete(ctx, planSystem, b.String())
	if err != nil {
		return intervene.Verdict{}, fmt.Errorf("intervention analysis: %w", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return intervene.Verdict{}, fmt.Errorf("intervention analysis: %w", err)
	}
	var out struct {
		Required bool   `json:"requires_intervention"`
		Type     string `json:"type"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return intervene.Verdict{}, fmt.Errorf("intervention analysis: %w", err)
	}
	typ := intervene.Type(strings.ToLower(out.Type))
	switch typ {
	case intervene.TypeLogin, intervene.TypeCaptcha:
	default:
		typ = intervene.TypeNone
	}
	return intervene.Verdict{Required: out.Required, Type: typ, Reason: out.Reason}, nil
}

func (p *planner) GenerateVerificationCheck(ctx context.Context, requirement, pageContext string) (string, error) {
	prompt := fmt.Sprintf(`Requirement to verify: %s

Page context: %s

Write a JavaScript IIFE that returns true when the requirement holds and
false otherwise. Respond as {"script": "..."}.`, requirement, pageContext)

	text, err := p.completer.Complete(ctx, planSystem, prompt)
	if err != nil {
		return "", fmt.Errorf("verification check: %w", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return "", fmt.Errorf("verification check: %w", err)
	}
	var out struct {
		Script string `json:"script"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", fmt.Errorf("verification check: %w", err)
	}
	if strings.TrimSpace(out.Script) == "" {
		return "", fmt.Errorf("verification check: empty script")
	}
	return out.Script, nil
}

func parseSteps(text string) ([]string, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse steps: %w: raw=%q", err, clip(text, 200))
	}
	var out struct {
		Steps []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("parse steps: %w", err)
	}
	steps := make([]string, 0, len(out.Steps))
	for _, s := range out.Steps {
		if s = strings.TrimSpace(s); s != "" {
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("parse steps: empty plan")
	}
	return steps, nil
}

func bulleted(items []string) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExtractJSON returns the first balanced top-level JSON object in text.
// Models wrap answers in prose and code fences often enough that plain
// unmarshal is not an option.
func ExtractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}
