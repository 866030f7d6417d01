package pagestate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alexrv/web-agent/internal/snapshot"
)

func TestClassifyEmptySnapshot(t *testing.T) {
	st := Classify(snapshot.Snapshot{})

	assert.Equal(t, Unknown, st.Label)
	assert.False(t, st.HasSearchBox)
	assert.False(t, st.HasResults)
	assert.False(t, st.HasLoginForm)
	assert.Empty(t, st.KeyElements)
}

func TestClassifyFlags(t *testing.T) {
	tests := []struct {
		name   string
		snap   snapshot.Snapshot
		label  Label
		search bool
		result bool
		login  bool
	}{
		{
			name: "search box only",
			snap: snapshot.Snapshot{
				URL: "https://duckduckgo.com",
				Elements: []snapshot.Element{
					{Tag: "input", Type: "search", Name: "q"},
				},
			},
			label:  SearchPage,
			search: true,
		},
		{
			name: "results listing",
			snap: snapshot.Snapshot{
				URL: "https://duckduckgo.com/?q=golang",
				Elements: []snapshot.Element{
					{Tag: "li", Text: strings.Repeat("a very long result row ", 4)},
				},
			},
			label:  ResultsPage,
			result: true,
		},
		{
			name: "search box alongside results",
			snap: snapshot.Snapshot{
				URL: "https://duckduckgo.com/?q=golang",
				Elements: []snapshot.Element{
					{Tag: "input", Type: "search"},
					{Tag: "article", Text: strings.Repeat("result content block ", 4)},
				},
			},
			label:  ResultsPage,
			search: true,
			result: true,
		},
		{
			name: "login form",
			snap: snapshot.Snapshot{
				URL: "https://example.com/signin",
				Elements: []snapshot.Element{
					{Tag: "input", Type: "password", Name: "pass"},
				},
			},
			label: Unknown,
			login: true,
		},
		{
			name: "amazon results url wins over flags",
			snap: snapshot.Snapshot{
				URL: "https://www.amazon.com/s?k=headphones",
				Elements: []snapshot.Element{
					{Tag: "input", Type: "text"},
				},
			},
			label:  AmazonSearchResults,
			search: true,
		},
		{
			name: "wikipedia url",
			snap: snapshot.Snapshot{
				URL: "https://en.wikipedia.org/wiki/Go_(programming_language)",
			},
			label: Wikipedia,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Classify(tt.snap)
			assert.Equal(t, tt.label, st.Label)
			assert.Equal(t, tt.search, st.HasSearchBox, "HasSearchBox")
			assert.Equal(t, tt.result, st.HasResults, "HasResults")
			assert.Equal(t, tt.login, st.HasLoginForm, "HasLoginForm")
		})
	}
}

func TestClassifyIdempotent(t *testing.T) {
	snap := snapshot.Snapshot{
		URL: "https://duckduckgo.com/?q=golang",
		Elements: []snapshot.Element{
			{Tag: "input", Type: "search"},
			{Tag: "li", Text: strings.Repeat("result line ", 10)},
			{Tag: "a", Text: "Login"},
		},
	}
	first := Classify(snap)
	second := Classify(snap)
	assert.Equal(t, first, second)
}

func TestClassifyKeyElementsBounded(t *testing.T) {
	elems := make([]snapshot.Element, 30)
	for i := range elems {
		elems[i] = snapshot.Element{Tag: "input", Type: "search"}
	}
	st := Classify(snapshot.Snapshot{Elements: elems})
	assert.Len(t, st.KeyElements, 10)
}
