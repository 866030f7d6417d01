package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexrv/web-agent/internal/action"
	"github.com/alexrv/web-agent/internal/browser"
	"github.com/alexrv/web-agent/internal/snapshot"
)

// fakeDriver simulates a page holding a known set of selectors. Fields
// control which operations succeed.
type fakeDriver struct {
	known       map[string]bool
	editable    map[string]bool
	contents    map[string]string
	clickFails  map[string]error
	fillFails   map[string]error
	navErr      error
	evalRows    []map[string]string
	evalErr     error
	clicked     []string
	dispatched  []string
	enterPress  []string
	navigations []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		known:      map[string]bool{},
		editable:   map[string]bool{},
		contents:   map[string]string{},
		clickFails: map[string]error{},
		fillFails:  map[string]error{},
	}
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.navigations = append(f.navigations, url)
	return f.navErr
}
func (f *fakeDriver) CurrentURL(context.Context) (string, error) { return "https://example.com", nil }
func (f *fakeDriver) Title(context.Context) (string, error)      { return "Example", nil }

func (f *fakeDriver) Click(_ context.Context, sel string) error {
	if !f.known[sel] {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	if err := f.clickFails[sel]; err != nil {
		return err
	}
	f.clicked = append(f.clicked, sel)
	return nil
}

func (f *fakeDriver) DispatchClick(_ context.Context, sel string) error {
	if !f.known[sel] {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	f.dispatched = append(f.dispatched, sel)
	return nil
}

func (f *fakeDriver) Fill(_ context.Context, sel, text string) error {
	if err := f.fillFails[sel]; err != nil {
		return err
	}
	if !f.known[sel] {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	f.contents[sel] = text
	return nil
}

func (f *fakeDriver) PressEnter(_ context.Context, sel string) error {
	f.enterPress = append(f.enterPress, sel)
	return nil
}

func (f *fakeDriver) ReadText(_ context.Context, sel string) (string, error) {
	if !f.known[sel] {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return f.contents[sel], nil
}

func (f *fakeDriver) IsEditable(_ context.Context, sel string) (bool, error) {
	if !f.known[sel] {
		return false, fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return f.editable[sel], nil
}

func (f *fakeDriver) ScrollIntoView(context.Context, string) error { return nil }
func (f *fakeDriver) Scroll(context.Context, string, int) error    { return nil }

func (f *fakeDriver) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if !f.known[sel] {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return nil
}

func (f *fakeDriver) Evaluate(_ context.Context, _ string, out any) error {
	if f.evalErr != nil {
		return f.evalErr
	}
	if rows, ok := out.(*[]map[string]string); ok {
		*rows = f.evalRows
	}
	return nil
}

func (f *fakeDriver) SaveState(context.Context, string) error { return nil }
func (f *fakeDriver) Close(context.Context) error             { return nil }

type fakeExporter struct {
	rows        []map[string]string
	consolidate string
	err         error
}

func (f *fakeExporter) AppendRows(_ context.Context, rows []map[string]string) error {
	f.rows = append(f.rows, rows...)
	return f.err
}

func (f *fakeExporter) Consolidate(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.consolidate, nil
}

func newTestExecutor(d *fakeDriver, exp Exporter) *Executor {
	return New(d, exp, NewHistory(DefaultHistorySize), "collect headlines", zerolog.Nop())
}

func TestClickDirect(t *testing.T) {
	d := newFakeDriver()
	d.known["#go"] = true
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClick, Selector: "#go"}, snapshot.Snapshot{})

	assert.True(t, res.Success)
	assert.Equal(t, "direct_click", res.Strategy)
	assert.Equal(t, []string{"#go"}, d.clicked)
}

func TestClickFallsBackToDispatch(t *testing.T) {
	d := newFakeDriver()
	d.known["#go"] = true
	d.clickFails["#go"] = fmt.Errorf("%w: overlay", browser.ErrNotInteractable)
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClick, Selector: "#go"}, snapshot.Snapshot{})

	assert.True(t, res.Success)
	assert.Equal(t, "dispatch_click", res.Strategy)
	assert.Equal(t, []string{"#go"}, d.dispatched)
}

func TestClickTriesNormalizedSelectors(t *testing.T) {
	d := newFakeDriver()
	d.known["#submit"] = true
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClick, Selector: `"#Submit"`}, snapshot.Snapshot{})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"#submit"}, d.clicked)
}

func TestClickFailureReturnsCandidates(t *testing.T) {
	d := newFakeDriver()
	elems := make([]snapshot.Element, 0, 15)
	for i := 0; i < 15; i++ {
		elems = append(elems, snapshot.Element{Tag: "a", Text: fmt.Sprintf("link %d", i), Selector: fmt.Sprintf("a:nth-of-type(%d)", i+1)})
	}
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClick, Selector: "#missing"}, snapshot.Snapshot{Elements: elems})

	assert.False(t, res.Success)
	assert.Equal(t, "element_not_found", res.ErrorKind)
	assert.Len(t, res.Candidates, 10)
}

func TestClickSkipsKnownBadSelector(t *testing.T) {
	d := newFakeDriver()
	ex := newTestExecutor(d, nil)
	act := action.Action{Kind: action.KindClick, Selector: "#flaky"}

	ex.Execute(context.Background(), act, snapshot.Snapshot{})
	ex.Execute(context.Background(), act, snapshot.Snapshot{})
	res := ex.Execute(context.Background(), act, snapshot.Snapshot{})

	assert.False(t, res.Success)
	assert.Equal(t, "known_bad_selector", res.ErrorKind)
}

func TestEnterTextPrimarySelector(t *testing.T) {
	d := newFakeDriver()
	d.known["#q"] = true
	d.editable["#q"] = true
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindEnterText, Selector: "#q", Text: "golang"}, snapshot.Snapshot{})

	require.True(t, res.Success)
	assert.Equal(t, "primary_selector", res.Strategy)
	assert.Equal(t, "golang", d.contents["#q"])
	assert.Equal(t, []string{"#q"}, d.enterPress)
}

func TestEnterTextNoSubmitSkipsEnter(t *testing.T) {
	d := newFakeDriver()
	d.known["#q"] = true
	d.editable["#q"] = true
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindEnterTextNoSubmit, Selector: "#q", Text: "draft"}, snapshot.Snapshot{})

	require.True(t, res.Success)
	assert.Empty(t, d.enterPress)
}

func TestEnterTextGenericFallback(t *testing.T) {
	d := newFakeDriver()
	d.known["input[type='search']"] = true
	d.editable["input[type='search']"] = true
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindEnterText, Selector: "#missing", Text: "golang"}, snapshot.Snapshot{})

	require.True(t, res.Success)
	assert.Equal(t, "generic_fallback", res.Strategy)
	assert.Equal(t, "golang", d.contents["input[type='search']"])
}

func TestEnterTextVerifiesContainment(t *testing.T) {
	d := newFakeDriver()
	d.known["#q"] = true
	d.editable["#q"] = true
	d.fillFails["#q"] = nil
	ex := newTestExecutor(d, nil)

	// Simulate a widget that drops the written value.
	d.contents["#q"] = ""
	d.fillFails["#q"] = errors.New("noop")

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindEnterText, Selector: "#q", Text: "golang"}, snapshot.Snapshot{})
	assert.False(t, res.Success)
}

func TestEnterTextFailureReturnsInputCandidates(t *testing.T) {
	d := newFakeDriver()
	ex := newTestExecutor(d, nil)
	snap := snapshot.Snapshot{Elements: []snapshot.Element{
		{Tag: "input", Type: "text", Selector: "#name"},
		{Tag: "a", Text: "Home", Selector: "a:nth-of-type(1)"},
	}}

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindEnterText, Selector: "#missing", Text: "x"}, snap)

	require.False(t, res.Success)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "#name", res.Candidates[0].Selector)
}

func TestClickButtonByKeyword(t *testing.T) {
	d := newFakeDriver()
	d.known["#search-btn"] = true
	snap := snapshot.Snapshot{Elements: []snapshot.Element{
		{Tag: "a", Text: "About us", Selector: "#about"},
		{Tag: "button", Text: "Search", Selector: "#search-btn"},
	}}
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClickButton}, snap)

	require.True(t, res.Success)
	assert.Equal(t, "keyword_match", res.Strategy)
	assert.Contains(t, res.Message, "Search")
}

func TestClickButtonFallsBackToFirstClickable(t *testing.T) {
	d := newFakeDriver()
	d.known["#about"] = true
	snap := snapshot.Snapshot{Elements: []snapshot.Element{
		{Tag: "div", Text: "banner"},
		{Tag: "a", Text: "About us", Selector: "#about"},
	}}
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClickButton, Keywords: []string{"checkout"}}, snap)

	require.True(t, res.Success)
	assert.Equal(t, []string{"#about"}, d.clicked)
}

func TestClickButtonEmptyPage(t *testing.T) {
	ex := newTestExecutor(newFakeDriver(), nil)
	res := ex.Execute(context.Background(), action.Action{Kind: action.KindClickButton}, snapshot.Snapshot{})
	assert.False(t, res.Success)
}

func TestNavigateAlwaysSucceeds(t *testing.T) {
	d := newFakeDriver()
	d.navErr = fmt.Errorf("%w: dns", browser.ErrTransport)
	ex := newTestExecutor(d, nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindNavigate, URL: "https://example.com"}, snapshot.Snapshot{})

	assert.True(t, res.Success)
	assert.Equal(t, []string{"https://example.com"}, d.navigations)
}

func TestWaitAndScrollSucceed(t *testing.T) {
	ex := newTestExecutor(newFakeDriver(), nil)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindWait, Duration: time.Millisecond}, snapshot.Snapshot{})
	assert.True(t, res.Success)

	res = ex.Execute(context.Background(), action.Action{Kind: action.KindScroll, Direction: "down", Pixels: 400}, snapshot.Snapshot{})
	assert.True(t, res.Success)
}

func TestExtractAppendsRows(t *testing.T) {
	d := newFakeDriver()
	d.evalRows = []map[string]string{{"title": "Headline", "text": "Body"}}
	exp := &fakeExporter{}
	ex := newTestExecutor(d, exp)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindExtract}, snapshot.Snapshot{})

	require.True(t, res.Success)
	assert.Len(t, exp.rows, 1)
	assert.False(t, res.ObjectiveComplete)
}

func TestExtractEmptyPageFails(t *testing.T) {
	ex := newTestExecutor(newFakeDriver(), &fakeExporter{})
	res := ex.Execute(context.Background(), action.Action{Kind: action.KindExtract}, snapshot.Snapshot{})
	assert.False(t, res.Success)
	assert.Equal(t, "empty_extraction", res.ErrorKind)
}

func TestFinalizeSignalsObjectiveComplete(t *testing.T) {
	exp := &fakeExporter{consolidate: "/tmp/out.xlsx"}
	ex := newTestExecutor(newFakeDriver(), exp)

	res := ex.Execute(context.Background(), action.Action{Kind: action.KindFinalize}, snapshot.Snapshot{})

	require.True(t, res.Success)
	assert.True(t, res.ObjectiveComplete)
	assert.Contains(t, res.Message, "/tmp/out.xlsx")
}

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 10; i++ {
		h.Record(action.Action{Kind: action.KindWait}, action.Result{Success: true})
	}
	assert.Len(t, h.Recent(0), 3)
	assert.Equal(t, 10, h.SuccessCount())
}

func TestHistoryKnownBad(t *testing.T) {
	h := NewHistory(5)
	act := action.Action{Kind: action.KindClick, Selector: "#x"}
	assert.False(t, h.KnownBad("#x"))
	h.Record(act, action.Result{})
	assert.False(t, h.KnownBad("#x"))
	h.Record(act, action.Result{})
	assert.True(t, h.KnownBad("#x"))
	assert.False(t, h.KnownBad(""))
}

func TestNormalizeSelector(t *testing.T) {
	got := normalizeSelector(`"#Login"`)
	assert.Equal(t, `"#Login"`, got[0])
	assert.Contains(t, got, "#Login")
	assert.Contains(t, got, "#login")
	assert.NotContains(t, strings.Join(got, "|"), "||")
}
