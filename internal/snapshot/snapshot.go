package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexrv/web-agent/internal/browser"
)

const (
	collectLimit = 300
	keepLimit    = 150
)

// Element describes one interactive node on the page.
type Element struct {
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Aria     string `json:"aria"`
}

// Snapshot is a point-in-time read of the current page. It is never mutated
// in place; callers re-capture instead.
type Snapshot struct {
	URL      string
	Title    string
	Elements []Element
}

// Heading is one document heading with its level (1..6).
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Structure summarizes the page layout. Fed to the planner only when the
// richer context is worth the tokens.
type Structure struct {
	Headings       []Heading `json:"headings"`
	RepeatedBlocks []string  `json:"repeatedBlocks"`
}

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTITLE: %s\nELEMENTS:\n", s.URL, s.Title)
	for i, el := range s.Elements {
		fmt.Fprintf(&b, "%d) tag=%s type=%s name=%s text=%q selector=%s aria=%s\n",
			i+1, el.Tag, el.Type, el.Name, el.Text, el.Selector, el.Aria)
	}
	return b.String()
}

// Collect captures the current page's interactive elements. Collection is
// best effort: partial or empty results are returned, never an error, unless
// the context is already dead.
func Collect(ctx context.Context, d browser.Driver) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	url, _ := d.CurrentURL(ctx)
	title, _ := d.Title(ctx)

	var elems []Element
	if err := d.Evaluate(ctx, collectScript(collectLimit), &elems); err != nil {
		elems = nil
	}
	return Snapshot{
		URL:      url,
		Title:    title,
		Elements: Rank(elems, keepLimit),
	}, nil
}

// CollectStructure captures headings and repeated layout blocks.
func CollectStructure(ctx context.Context, d browser.Driver) (Structure, error) {
	if err := ctx.Err(); err != nil {
		return Structure{}, err
	}
	var st Structure
	if err := d.Evaluate(ctx, structureScript, &st); err != nil {
		return Structure{}, nil
	}
	return st, nil
}

func collectScript(limit int) string {
	return fmt.Sprintf(`(() => {
	const limit = %d;
	const pick = [];
	function walk(root) {
		if (!root || pick.length >= limit) return;
		let nodes;
		try {
			nodes = root.querySelectorAll("a,button,input,select,textarea,[role],[tabindex],[onclick],[data-testid],[contenteditable='true']");
		} catch (e) {
			return;
		}
		for (const el of nodes) {
			if (pick.length >= limit) break;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 && rect.height === 0) continue;
			const tag = el.tagName.toLowerCase();
			const type = el.getAttribute("type") || el.getAttribute("role") || "";
			const name = el.getAttribute("name") || "";
			const aria = el.getAttribute("aria-label") || el.getAttribute("placeholder") || "";
			const text = (el.innerText || el.textContent || el.value || "").trim().slice(0, 120);

			let sel = "";
			if (el.id) {
				sel = "#" + CSS.escape(el.id);
			} else if (name) {
				sel = tag + "[name=\"" + name + "\"]";
			} else if (el.getAttribute("data-testid")) {
				sel = "[data-testid=\"" + el.getAttribute("data-testid") + "\"]";
			} else if (aria) {
				const safe = aria.replace(/"/g, "").slice(0, 40);
				sel = tag + "[aria-label*=\"" + safe + "\"]";
			} else {
				const parent = el.parentElement;
				const siblings = parent ? Array.from(parent.children).filter(c => c.tagName === el.tagName) : [];
				const idx = siblings.indexOf(el) + 1;
				if (idx > 0) sel = tag + ":nth-of-type(" + idx + ")";
			}
			if (!text && !name && !aria) continue;
			pick.push({tag, text, type, name, selector: sel, aria});

			if (el.shadowRoot) walk(el.shadowRoot);
		}
	}
	walk(document);
	return pick;
})()`, limit)
}

const structureScript = `(() => {
	const headings = [];
	for (const h of document.querySelectorAll("h1,h2,h3,h4,h5,h6")) {
		const text = (h.innerText || "").trim().slice(0, 100);
		if (!text) continue;
		headings.push({level: Number(h.tagName[1]), text});
		if (headings.length >= 20) break;
	}
	const counts = {};
	for (const el of document.querySelectorAll("[class]")) {
		const cls = el.className;
		if (typeof cls !== "string" || !cls.trim()) continue;
		const key = el.tagName.toLowerCase() + "." + cls.trim().split(/\s+/)[0];
		counts[key] = (counts[key] || 0) + 1;
	}
	const repeated = Object.entries(counts)
		.filter(([, n]) => n >= 4)
		.sort((a, b) => b[1] - a[1])
		.slice(0, 10)
		.map(([key, n]) => key + " x" + n);
	return {headings, repeatedBlocks: repeated};
})()`

// Rank keeps the max most relevant elements, highest score first. Elements
// scoring zero or below are dropped.
func Rank(elems []Element, max int) []Element {
	if len(elems) <= max {
		return elems
	}
	type scored struct {
		el    Element
		score int
	}
	kept := make([]scored, 0, len(elems))
	for _, el := range elems {
		if s := Score(el); s > 0 {
			kept = append(kept, scored{el, s})
		}
	}
	for i := 0; i < len(kept)-1; i++ {
		for j := i + 1; j < len(kept); j++ {
			if kept[i].score < kept[j].score {
				kept[i], kept[j] = kept[j], kept[i]
			}
		}
	}
	if len(kept) > max {
		kept = kept[:max]
	}
	out := make([]Element, len(kept))
	for i, k := range kept {
		out[i] = k.el
	}
	return out
}

// Score rates how useful an element is as an action target.
func Score(el Element) int {
	score := 0
	switch el.Tag {
	case "a", "button", "input", "textarea", "select":
		score += 5
	}
	if el.Type != "" {
		score += 2
	}
	if el.Selector != "" {
		score += 2
	}
	if n := len(el.Text); n > 0 {
		score += 3
		if n > 10 && n < 200 {
			score += 2
		}
		if n > 500 {
			score -= 3
		}
	}
	if el.Aria != "" {
		score += 2
	}
	if el.Text == "" && el.Name == "" && el.Aria == "" {
		score -= 5
	}
	return score
}
