package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies one of the supported browser actions.
type Kind string

const (
	KindClick             Kind = "click_element"
	KindEnterText         Kind = "enter_text"
	KindEnterTextNoSubmit Kind = "enter_text_no_enter"
	KindClickButton       Kind = "click_button"
	KindNavigate          Kind = "navigate_to"
	KindWait              Kind = "wait"
	KindScroll            Kind = "scroll"
	KindExtract           Kind = "extract_data"
	KindFinalize          Kind = "finalize_extraction"
)

// Action is one concrete browser command. Fields are populated per kind;
// Validate enforces which ones are required. Actions are generated fresh for
// every attempt and never persisted.
type Action struct {
	Kind      Kind
	Selector  string
	Text      string
	Keywords  []string
	URL       string
	Duration  time.Duration
	Direction string
	Pixels    int
}

type rawAction struct {
	Action     string `json:"action"`
	Parameters struct {
		Selector  string   `json:"selector"`
		Text      string   `json:"text"`
		Keywords  []string `json:"keywords"`
		URL       string   `json:"url"`
		Seconds   float64  `json:"seconds"`
		Direction string   `json:"direction"`
		Pixels    int      `json:"pixels"`
	} `json:"parameters"`
}

// Parse decodes a planner response of the form
// {"action": "...", "parameters": {...}} and validates it. Unknown kinds are
// rejected here, at the boundary, rather than deep inside execution.
func Parse(data []byte) (Action, error) {
	var raw rawAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	act := Action{
		Kind:      Kind(strings.TrimSpace(raw.Action)),
		Selector:  strings.TrimSpace(raw.Parameters.Selector),
		Text:      raw.Parameters.Text,
		Keywords:  raw.Parameters.Keywords,
		URL:       strings.TrimSpace(raw.Parameters.URL),
		Direction: strings.TrimSpace(raw.Parameters.Direction),
		Pixels:    raw.Parameters.Pixels,
	}
	if raw.Parameters.Seconds > 0 {
		act.Duration = time.Duration(raw.Parameters.Seconds * float64(time.Second))
	}
	if err := act.Validate(); err != nil {
		return Action{}, err
	}
	return act, nil
}

// Validate checks that the fields required by the kind are present.
func (a Action) Validate() error {
	switch a.Kind {
	case KindClick:
		if a.Selector == "" {
			return fmt.Errorf("%s: selector required", a.Kind)
		}
	case KindEnterText, KindEnterTextNoSubmit:
		if a.Selector == "" {
			return fmt.Errorf("%s: selector required", a.Kind)
		}
		if a.Text == "" {
			return fmt.Errorf("%s: text required", a.Kind)
		}
	case KindClickButton:
		// Keywords optional: a default submit-like set applies.
	case KindNavigate:
		if a.URL == "" {
			return fmt.Errorf("%s: url required", a.Kind)
		}
	case KindWait:
		if a.Duration <= 0 {
			return fmt.Errorf("%s: positive duration required", a.Kind)
		}
	case KindScroll:
		// Direction defaults to down, pixels to a viewport-ish amount.
	case KindExtract, KindFinalize:
	case "":
		return fmt.Errorf("empty action kind")
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// RequiresVerification reports whether the action's effect must be confirmed
// by comparing page snapshots afterwards. Text entry, clicks, waits and
// scrolls count as done once they execute without error; navigation changes
// the page wholesale and is verified. Unrecognized kinds verify too: never
// assume silent success for an action we do not understand.
func (a Action) RequiresVerification() bool {
	switch a.Kind {
	case KindClick, KindClickButton, KindEnterText, KindEnterTextNoSubmit,
		KindWait, KindScroll, KindExtract, KindFinalize:
		return false
	case KindNavigate:
		return true
	default:
		return true
	}
}

func (a Action) String() string {
	switch a.Kind {
	case KindClick:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Selector)
	case KindEnterText, KindEnterTextNoSubmit:
		return fmt.Sprintf("%s(%s, %q)", a.Kind, a.Selector, a.Text)
	case KindClickButton:
		return fmt.Sprintf("%s(%s)", a.Kind, strings.Join(a.Keywords, ","))
	case KindNavigate:
		return fmt.Sprintf("%s(%s)", a.Kind, a.URL)
	case KindWait:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Duration)
	case KindScroll:
		return fmt.Sprintf("%s(%s, %d)", a.Kind, a.Direction, a.Pixels)
	default:
		return string(a.Kind)
	}
}
