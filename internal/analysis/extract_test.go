package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type structure struct {
	DeleteID []string `json:"delete_id"`
	Items    []struct {
		Title string `json:"title"`
	} `json:"items"`
}

const bare = `{"delete_id":["x1"],"items":[{"title":"Intro"}]}`

func TestExtractWrappedEqualsUnwrapped(t *testing.T) {
	want, err := Extract[structure](bare, "document_structure")
	require.NoError(t, err)

	tests := map[string]string{
		"tag":           "<document_structure>" + bare + "</document_structure>",
		"tag and fence": "Here you go:\n<document_structure>\n```json\n" + bare + "\n```\n</document_structure>\nDone.",
		"fence only":    "```json\n" + bare + "\n```",
		"bare fence":    "prefix\n```\n" + bare + "\n```",
		"upper fence":   "```JSON\n" + bare + "\n```",
		"jsonc fence":   "<document_structure>```jsonc\n" + bare + "\n```</document_structure>",
		"surrounding":   "  \n" + bare + "\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Extract[structure](raw, "document_structure")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestFencedCandidateSkipsInfoString(t *testing.T) {
	raw := "```JSON\n" + bare + "\n```"
	assert.Equal(t, []string{bare, raw}, Candidates(raw, "document_structure"))
}

func TestExtractFailures(t *testing.T) {
	_, err := Extract[structure]("no payload here", "document_structure")
	assert.ErrorIs(t, err, ErrNoPayload)

	_, err = Extract[structure](`<document_structure>{"items": [</document_structure>`, "document_structure")
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestExtractArray(t *testing.T) {
	type entry struct {
		Date  string `json:"date"`
		Title string `json:"title"`
	}
	got, err := Extract[[]entry](`<changelog>[{"date":"2024-03-01","title":"Docs"}]</changelog>`, "changelog")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Docs", got[0].Title)
}

func TestCandidatesOrder(t *testing.T) {
	raw := "<t>```json\n{}\n```</t>"
	assert.Equal(t, []string{"```json\n{}\n```", "{}", raw}, Candidates(raw, "t"))
}
