// Package intervene decides whether the current page blocks the agent behind
// a login wall or CAPTCHA, and owns the human handshake used to clear it.
package intervene

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alexrv/web-agent/internal/snapshot"
)

type Type string

const (
	TypeNone    Type = "none"
	TypeLogin   Type = "login"
	TypeCaptcha Type = "captcha"
)

// Verdict is the detector's decision for one snapshot.
type Verdict struct {
	Required bool
	Type     Type
	Reason   string
}

// Analyzer is the language-model tier of the detector. Implementations live
// in the llm package.
type Analyzer interface {
	AnalyzePageForIntervention(ctx context.Context, elements []snapshot.Element) (Verdict, error)
}

// Handshake blocks until a human signals continue (true) or abort (false).
type Handshake interface {
	RequestIntervention(ctx context.Context, message string, typ Type) (bool, error)
}

// maxAnalyzedElements bounds the payload handed to the analyzer tier.
const maxAnalyzedElements = 20

// Detector runs the analyzer first and falls back to the rule-based scan
// when the analyzer is unavailable or errors.
type Detector struct {
	analyzer Analyzer
	logger   zerolog.Logger
}

func NewDetector(analyzer Analyzer, logger zerolog.Logger) *Detector {
	return &Detector{analyzer: analyzer, logger: logger.With().Str("component", "intervene").Logger()}
}

func (d *Detector) Detect(ctx context.Context, snap snapshot.Snapshot) Verdict {
	if d.analyzer != nil {
		trimmed := snap.Elements
		if len(trimmed) > maxAnalyzedElements {
			trimmed = trimmed[:maxAnalyzedElements]
		}
		verdict, err := d.analyzer.AnalyzePageForIntervention(ctx, trimmed)
		if err == nil {
			return verdict
		}
		d.logger.Warn().Err(err).Msg("analyzer unavailable, using rule-based detection")
	}
	return RuleBased(snap.Elements)
}

var captchaPhrases = []string{
	"captcha",
	"verify you're human",
	"verify you are human",
	"i'm not a robot",
	"i am not a robot",
	"no soy un robot",
	"verificación humana",
	"unusual traffic",
}

var socialLoginPhrases = []string{
	"continue with google",
	"sign in with google",
	"continue with facebook",
	"sign in with facebook",
	"continue with apple",
	"sign in with apple",
	"continuar con google",
	"iniciar sesión con google",
}

var loginPhrases = []string{
	"log in", "login", "sign in", "signin",
	"iniciar sesión", "acceder", "entrar",
}

var signupPhrases = []string{
	"sign up", "signup", "register", "create account", "join now",
	"crear cuenta", "registrarse",
}

// RuleBased is the fallback tier. It must never flag ordinary content-rich
// pages: a nav-bar "Sign in" link on a site full of functional elements is
// not a wall. Dedicated auth pages have few functional elements, which is
// what the asymmetric rule keys on.
func RuleBased(elements []snapshot.Element) Verdict {
	var loginCount, signupCount, socialCount, functionalCount int

	for _, el := range elements {
		text := strings.ToLower(el.Text)
		aria := strings.ToLower(el.Aria)
		name := strings.ToLower(el.Name)
		typ := strings.ToLower(el.Type)
		combined := text + " " + aria + " " + name

		for _, phrase := range captchaPhrases {
			if strings.Contains(combined, phrase) {
				return Verdict{
					Required: true,
					Type:     TypeCaptcha,
					Reason:   "page text matches CAPTCHA phrase: " + phrase,
				}
			}
		}

		switch {
		case containsAny(combined, socialLoginPhrases):
			socialCount++
		case containsAny(combined, loginPhrases) || strings.Contains(name, "login") || strings.Contains(name, "signin"):
			if el.Tag == "button" || el.Tag == "a" || typ == "submit" || typ == "button" {
				loginCount++
			}
		case containsAny(combined, signupPhrases):
			if el.Tag == "button" || el.Tag == "a" || typ == "submit" || typ == "button" {
				signupCount++
			}
		}

		if isFunctional(el) {
			functionalCount++
		}
	}

	switch {
	case loginCount+signupCount >= 2,
		socialCount > 0,
		loginCount > 0 && functionalCount <= 1,
		signupCount > 0 && functionalCount <= 1:
		return Verdict{
			Required: true,
			Type:     TypeLogin,
			Reason:   "page looks like a dedicated auth wall",
		}
	}
	return Verdict{Type: TypeNone}
}

// isFunctional reports whether the element offers non-auth functionality:
// search boxes, content links, navigation.
func isFunctional(el snapshot.Element) bool {
	text := strings.ToLower(el.Text)
	typ := strings.ToLower(el.Type)
	if typ == "search" || strings.Contains(strings.ToLower(el.Aria), "search") {
		return true
	}
	if el.Tag == "a" && len(el.Text) > 0 &&
		!containsAny(text, loginPhrases) && !containsAny(text, signupPhrases) && !containsAny(text, socialLoginPhrases) {
		return true
	}
	if typ == "navigation" || el.Tag == "select" {
		return true
	}
	return false
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
