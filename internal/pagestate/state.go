// Package pagestate derives a semantic label for the current page from a
// snapshot. Classification is a pure function so the redundancy checks built
// on top of it stay unit-testable.
package pagestate

import (
	"strings"

	"github.com/alexrv/web-agent/internal/snapshot"
)

type Label string

const (
	Unknown             Label = "unknown"
	SearchPage          Label = "search-page"
	ResultsPage         Label = "results-page"
	AmazonSearchResults Label = "amazon-search-results"
	Wikipedia           Label = "wikipedia"
)

// State is the classification of one snapshot. Derived transiently; never
// persisted across steps.
type State struct {
	Label        Label
	HasSearchBox bool
	HasResults   bool
	HasLoginForm bool
	KeyElements  []snapshot.Element
}

const maxKeyElements = 10

// Classify inspects the snapshot's URL and elements. Flags are computed
// independently; the headline label is first-match-wins.
func Classify(snap snapshot.Snapshot) State {
	var st State
	for _, el := range snap.Elements {
		text := strings.ToLower(el.Text)
		typ := strings.ToLower(el.Type)
		matched := false

		if typ == "search" || typ == "text" || strings.Contains(text, "search") {
			st.HasSearchBox = true
			matched = true
		}
		if strings.Contains(text, "result") || ((el.Tag == "article" || el.Tag == "li") && len(el.Text) > 50) {
			st.HasResults = true
			matched = true
		}
		if typ == "email" || typ == "password" || strings.Contains(text, "login") {
			st.HasLoginForm = true
			matched = true
		}
		if matched && len(st.KeyElements) < maxKeyElements {
			st.KeyElements = append(st.KeyElements, el)
		}
	}

	url := strings.ToLower(snap.URL)
	switch {
	case strings.Contains(url, "amazon.") && strings.Contains(url, "s?"):
		st.Label = AmazonSearchResults
	case strings.Contains(url, "wikipedia.org"):
		st.Label = Wikipedia
	case st.HasSearchBox && !st.HasResults:
		st.Label = SearchPage
	case st.HasResults:
		st.Label = ResultsPage
	default:
		st.Label = Unknown
	}
	return st
}
