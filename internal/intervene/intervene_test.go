package intervene

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexrv/web-agent/internal/snapshot"
)

func TestRuleBasedCaptchaPhrase(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "a", Text: "Home"},
		{Tag: "div", Text: "Please verify you're human to continue"},
		{Tag: "input", Type: "search"},
	}
	v := RuleBased(elems)

	assert.True(t, v.Required)
	assert.Equal(t, TypeCaptcha, v.Type)
}

func TestRuleBasedLoginSignupPair(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "button", Text: "Log in"},
		{Tag: "button", Text: "Sign up"},
	}
	v := RuleBased(elems)

	assert.True(t, v.Required)
	assert.Equal(t, TypeLogin, v.Type)
}

func TestRuleBasedSocialLogin(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "button", Text: "Continue with Google"},
		{Tag: "a", Text: "Browse articles"},
		{Tag: "a", Text: "Trending"},
		{Tag: "input", Type: "search"},
	}
	v := RuleBased(elems)

	assert.True(t, v.Required)
	assert.Equal(t, TypeLogin, v.Type)
}

func TestRuleBasedSingleSearchBoxIsNotAWall(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "input", Type: "search", Name: "q"},
	}
	v := RuleBased(elems)

	assert.False(t, v.Required)
	assert.Equal(t, TypeNone, v.Type)
}

func TestRuleBasedNavBarSignInOnContentSite(t *testing.T) {
	// One login link surrounded by plenty of functional elements.
	elems := []snapshot.Element{
		{Tag: "a", Text: "Sign in"},
		{Tag: "input", Type: "search"},
		{Tag: "a", Text: "World news"},
		{Tag: "a", Text: "Sports"},
		{Tag: "a", Text: "Weather"},
	}
	v := RuleBased(elems)

	assert.False(t, v.Required)
}

func TestRuleBasedLoginOnBarePage(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "button", Text: "Log in"},
		{Tag: "input", Type: "password"},
	}
	v := RuleBased(elems)

	assert.True(t, v.Required)
	assert.Equal(t, TypeLogin, v.Type)
}

func TestRuleBasedIdempotent(t *testing.T) {
	elems := []snapshot.Element{
		{Tag: "button", Text: "Sign up"},
		{Tag: "button", Text: "Log in"},
	}
	assert.Equal(t, RuleBased(elems), RuleBased(elems))
}

func TestRuleBasedEmpty(t *testing.T) {
	v := RuleBased(nil)
	assert.False(t, v.Required)
	assert.Equal(t, TypeNone, v.Type)
}

type stubAnalyzer struct {
	verdict Verdict
	err     error
	seen    int
}

func (s *stubAnalyzer) AnalyzePageForIntervention(_ context.Context, elements []snapshot.Element) (Verdict, error) {
	s.seen = len(elements)
	return s.verdict, s.err
}

func TestDetectorUsesAnalyzerVerdict(t *testing.T) {
	an := &stubAnalyzer{verdict: Verdict{Required: true, Type: TypeCaptcha, Reason: "grid challenge"}}
	d := NewDetector(an, zerolog.Nop())

	v := d.Detect(context.Background(), snapshot.Snapshot{Elements: []snapshot.Element{{Tag: "a", Text: "Home"}}})
	assert.True(t, v.Required)
	assert.Equal(t, TypeCaptcha, v.Type)
}

func TestDetectorCapsAnalyzerPayload(t *testing.T) {
	an := &stubAnalyzer{}
	d := NewDetector(an, zerolog.Nop())

	elems := make([]snapshot.Element, 50)
	for i := range elems {
		elems[i] = snapshot.Element{Tag: "a", Text: "link"}
	}
	d.Detect(context.Background(), snapshot.Snapshot{Elements: elems})
	assert.Equal(t, 20, an.seen)
}

func TestDetectorFallsBackOnAnalyzerError(t *testing.T) {
	an := &stubAnalyzer{err: errors.New("model offline")}
	d := NewDetector(an, zerolog.Nop())

	v := d.Detect(context.Background(), snapshot.Snapshot{Elements: []snapshot.Element{
		{Tag: "button", Text: "Log in"},
		{Tag: "button", Text: "Create account"},
	}})
	assert.True(t, v.Required)
	assert.Equal(t, TypeLogin, v.Type)
}

func TestHandshakeContinueAndAbort(t *testing.T) {
	cases := []struct {
		answer string
		want   bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"\n", true},
		{"n\n", false},
		{"abort\n", false},
	}
	for _, tc := range cases {
		h := NewHandshakeWithPrompt(func(string) (string, error) {
			return tc.answer, nil
		}, zerolog.Nop())
		got, err := h.RequestIntervention(context.Background(), "login wall", TypeLogin)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "answer %q", tc.answer)
	}
}

func TestHandshakeObservesCancellation(t *testing.T) {
	block := make(chan struct{})
	h := NewHandshakeWithPrompt(func(string) (string, error) {
		<-block
		return "y", nil
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.RequestIntervention(ctx, "login wall", TypeLogin)
	assert.ErrorIs(t, err, context.Canceled)
	close(block)
}
