package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultNavTimeout   = 30 * time.Second
	defaultActionTime   = 10 * time.Second
	defaultScrollAmount = 600
)

// The driver surfaces three distinguishable error classes so callers can
// choose a recovery strategy without parsing playwright messages themselves.
var (
	ErrNotFound        = errors.New("element not found")
	ErrNotInteractable = errors.New("element not interactable")
	ErrTransport       = errors.New("browser transport failure")
)

// Kind maps a driver error onto a short diagnostic tag.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "element_not_found"
	case errors.Is(err, ErrNotInteractable):
		return "not_interactable"
	case errors.Is(err, ErrTransport):
		return "transport_error"
	default:
		return "unknown"
	}
}

// Driver is the browser collaborator consumed by the snapshot producer and
// the action executor. It is the only component that issues page commands.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	DispatchClick(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, text string) error
	PressEnter(ctx context.Context, selector string) error
	ReadText(ctx context.Context, selector string) (string, error)
	IsEditable(ctx context.Context, selector string) (bool, error)
	ScrollIntoView(ctx context.Context, selector string) error
	Scroll(ctx context.Context, direction string, pixels int) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Evaluate(ctx context.Context, script string, out any) error
	SaveState(ctx context.Context, path string) error
	Close(ctx context.Context) error
}

// Launcher owns the playwright lifecycle.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func NewLauncher(ctx context.Context, headless bool) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	return &Launcher{pw: pw, browser: b}, nil
}

// NewDriver opens a fresh browser context and page. storagePath, when it
// names an existing file, seeds cookies and localStorage from a previous run.
func (l *Launcher) NewDriver(ctx context.Context, storagePath string) (Driver, error) {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if strings.TrimSpace(storagePath) != "" {
		if _, err := os.Stat(storagePath); err == nil {
			opts.StorageStatePath = playwright.String(storagePath)
		}
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &driver{context: bctx, page: page}, nil
}

func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type driver struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (d *driver) Close(ctx context.Context) error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.context != nil {
		return d.context.Close()
	}
	return nil
}

func (d *driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	})
	return classify(err)
}

func (d *driver) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

func (d *driver) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := d.page.Title()
	return title, classify(err)
}

func (d *driver) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// First() avoids strict-mode violations when the selector is ambiguous.
	loc := d.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(defaultActionTime.Milliseconds())),
	}); err != nil {
		return classify(err)
	}
	_ = loc.ScrollIntoViewIfNeeded()
	return classify(loc.Click())
}

// DispatchClick fires a synthetic click event instead of a pointer click.
// Second mechanism for targets that refuse the direct interaction.
func (d *driver) DispatchClick(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return "missing";
		el.dispatchEvent(new MouseEvent("click", { bubbles: true, cancelable: true }));
		return "ok";
	}`
	val, err := d.page.Evaluate(script, selector)
	if err != nil {
		return classify(err)
	}
	if s, ok := val.(string); ok && s == "missing" {
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return nil
}

func (d *driver) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	loc := d.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(defaultActionTime.Milliseconds())),
	}); err != nil {
		return classify(err)
	}
	if err := loc.Fill(text); err == nil {
		return nil
	}
	// Fill refuses contenteditable widgets and guarded inputs; typing
	// character by character fires the events SPA frameworks listen for.
	return d.typeSimulated(ctx, selector, text)
}

func (d *driver) typeSimulated(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	script := `(args) => {
		const el = document.querySelector(args.sel);
		if (!el) return "missing";
		el.focus();
		const editable = el.isContentEditable;
		if (editable) {
			const selection = window.getSelection();
			selection.selectAllChildren(el);
			selection.deleteFromDocument();
			el.textContent = "";
		} else if ("value" in el) {
			el.value = "";
		} else {
			return "not_editable";
		}
		el.dispatchEvent(new Event("input", { bubbles: true }));
		let current = "";
		for (const ch of args.text) {
			current += ch;
			el.dispatchEvent(new KeyboardEvent("keydown", { key: ch, bubbles: true }));
			if (editable) {
				el.textContent = current;
			} else {
				el.value = current;
			}
			el.dispatchEvent(new InputEvent("input", { bubbles: true, inputType: "insertText", data: ch }));
			el.dispatchEvent(new KeyboardEvent("keyup", { key: ch, bubbles: true }));
		}
		el.dispatchEvent(new Event("change", { bubbles: true }));
		return "ok";
	}`
	val, err := d.page.Evaluate(script, map[string]any{"sel": selector, "text": text})
	if err != nil {
		return classify(err)
	}
	switch val {
	case "missing":
		return fmt.Errorf("%w: %s", ErrNotFound, selector)
	case "not_editable":
		return fmt.Errorf("%w: %s", ErrNotInteractable, selector)
	}
	return nil
}

func (d *driver) PressEnter(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(d.page.Locator(selector).First().Press("Enter"))
}

func (d *driver) ReadText(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	script := `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		if ("value" in el && el.value !== undefined && el.value !== "") return el.value;
		return el.textContent || "";
	}`
	val, err := d.page.Evaluate(script, selector)
	if err != nil {
		return "", classify(err)
	}
	if val == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	s, _ := val.(string)
	return s, nil
}

func (d *driver) IsEditable(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	script := `(sel) => {
		const el = document.querySelector(sel);
		if (!el) return "missing";
		const tag = el.tagName.toLowerCase();
		if (tag === "input" || tag === "textarea") return "yes";
		if (el.isContentEditable) return "yes";
		return "no";
	}`
	val, err := d.page.Evaluate(script, selector)
	if err != nil {
		return false, classify(err)
	}
	switch val {
	case "missing":
		return false, fmt.Errorf("%w: %s", ErrNotFound, selector)
	case "yes":
		return true, nil
	}
	return false, nil
}

func (d *driver) ScrollIntoView(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(d.page.Locator(selector).First().ScrollIntoViewIfNeeded())
}

// Scroll shifts the most plausible scroll container. SPAs frequently scroll
// an inner element rather than the window, so containers are probed before
// falling back to window.scrollBy.
func (d *driver) Scroll(ctx context.Context, direction string, pixels int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if pixels <= 0 {
		pixels = defaultScrollAmount
	}
	script := `(args) => {
		function scrollable(el) {
			if (!el) return false;
			const s = window.getComputedStyle(el);
			return (s.overflowY === "auto" || s.overflowY === "scroll") && el.scrollHeight > el.clientHeight;
		}
		const candidates = [];
		const nodes = document.querySelectorAll('div,section,main,[role="main"],aside');
		for (const n of nodes) {
			if (scrollable(n)) candidates.push(n);
		}
		let move = Number(args.pixels) || 600;
		if ((args.dir || "down").toLowerCase() === "up") move = -move;
		if (candidates.length > 0) {
			candidates[0].scrollBy({ top: move, left: 0, behavior: "auto" });
			return true;
		}
		window.scrollBy(0, move);
		return false;
	}`
	_, err := d.page.Evaluate(script, map[string]any{"dir": direction, "pixels": pixels})
	return classify(err)
}

func (d *driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultActionTime
	}
	return classify(d.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeout.Seconds() * 1000),
	}))
}

// Evaluate runs script in the page and JSON-round-trips the result into out.
func (d *driver) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := d.page.Evaluate(script)
	if err != nil {
		return classify(err)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal script result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

func (d *driver) SaveState(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := d.context.StorageState()
	if err != nil {
		return classify(err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal storage: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// classify buckets raw playwright errors into the three driver error classes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "not visible") ||
		(strings.Contains(msg, "timeout") && strings.Contains(msg, "waiting for")):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case strings.Contains(msg, "not clickable") || strings.Contains(msg, "not interactable") ||
		strings.Contains(msg, "intercepts pointer") || strings.Contains(msg, "not editable"):
		return fmt.Errorf("%w: %v", ErrNotInteractable, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
