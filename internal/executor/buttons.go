package executor

import (
	"fmt"
	"strings"

	"github.com/alexrv/web-agent/internal/snapshot"
)

// defaultButtonKeywords are the submit-like words used when the planner gave
// no keywords of its own.
var defaultButtonKeywords = []string{
	"search", "submit", "send", "go", "enter", "buscar", "enviar",
}

func isClickable(el snapshot.Element) bool {
	switch el.Tag {
	case "button", "a":
		return true
	case "input":
		t := strings.ToLower(el.Type)
		return t == "submit" || t == "button"
	}
	t := strings.ToLower(el.Type)
	return t == "button" || t == "link"
}

// pickButton scores every clickable element against the keywords and returns
// the best match with a human-readable reason. When nothing matches, the
// first clickable element is returned as a fallback.
func pickButton(elements []snapshot.Element, keywords []string) (*snapshot.Element, string) {
	if len(keywords) == 0 {
		keywords = defaultButtonKeywords
	}

	var (
		best      *snapshot.Element
		bestScore int
		bestWord  string
		first     *snapshot.Element
	)
	for i := range elements {
		el := &elements[i]
		if !isClickable(*el) {
			continue
		}
		if first == nil {
			first = el
		}
		score, word := scoreButton(*el, keywords)
		if score > bestScore {
			best, bestScore, bestWord = el, score, word
		}
	}
	if best != nil {
		return best, fmt.Sprintf("keyword %q, score %d", bestWord, bestScore)
	}
	if first != nil {
		return first, "first clickable fallback"
	}
	return nil, ""
}

func scoreButton(el snapshot.Element, keywords []string) (int, string) {
	haystacks := []struct {
		text   string
		weight int
	}{
		{strings.ToLower(el.Text), 3},
		{strings.ToLower(el.Aria), 2},
		{strings.ToLower(el.Name), 2},
		{strings.ToLower(el.Type), 1},
	}
	score := 0
	matched := ""
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, h := range haystacks {
			if h.text == "" || !strings.Contains(h.text, kw) {
				continue
			}
			w := h.weight
			if h.text == kw {
				w += 2
			}
			score += w
			if matched == "" {
				matched = kw
			}
		}
	}
	return score, matched
}
