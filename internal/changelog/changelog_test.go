package changelog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/docsync/internal/analysis"
	"github.com/kurihiro0119/docsync/internal/domain"
	"github.com/kurihiro0119/docsync/internal/llm"
)

type memStore struct {
	latest   time.Time
	hasAny   bool
	appended []*domain.ChangelogEntry
}

func (s *memStore) LatestChangelogDate(context.Context, string) (time.Time, bool, error) {
	return s.latest, s.hasAny, nil
}

func (s *memStore) AppendChangelog(_ context.Context, entries []*domain.ChangelogEntry) error {
	s.appended = append(s.appended, entries...)
	return nil
}

type fakeLister struct {
	commits []*domain.Commit
	since   time.Time
	paths   []string
}

func (f *fakeLister) ListCommits(_ context.Context, path string, since time.Time) ([]*domain.Commit, error) {
	f.paths = append(f.paths, path)
	f.since = since
	var out []*domain.Commit
	for _, c := range f.commits {
		if since.IsZero() || c.CommittedAt.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeClient struct {
	response string
	prompts  []string
}

func (c *fakeClient) Complete(_ context.Context, prompt string, _ llm.Options) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, nil
}

func (c *fakeClient) Stream(context.Context, string, llm.Options) (llm.ChunkStream, error) {
	return nil, errors.New("streaming not scripted")
}

func newGenerator(store Store, lister CommitLister, client llm.Client) *Generator {
	inv := analysis.NewInvoker(client, analysis.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil)
	return NewGenerator(store, lister, inv, Options{}, nil)
}

func TestGenerateAppendsEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Koala"), 0o644))

	t1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC)
	lister := &fakeLister{commits: []*domain.Commit{
		{Sha: "m1", CommitterName: "ada", Message: "add a.md\n", CommittedAt: t1},
		{Sha: "m2", CommitterName: "bob", Message: "extend a.md\n", CommittedAt: t2},
	}}
	client := &fakeClient{response: "<changelog>\n" +
		`[{"date":"2024-03-02 11:30:00","title":"Docs for a","description":"a.md explains the basics"},` +
		`{"date":"sometime","title":"Misc","description":"tweaks"}]` +
		"\n</changelog>"}
	store := &memStore{}

	entries, err := newGenerator(store, lister, client).Generate(context.Background(),
		&domain.Repository{ID: "r1", Address: "https://github.com/acme/koala.git", Branch: "main"},
		dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.True(t, t2.Equal(entries[0].Date))
	assert.Equal(t, "Docs for a", entries[0].Title)
	assert.Empty(t, entries[0].Author)
	assert.True(t, t2.Equal(entries[1].Date), "unreadable dates fall back to the newest commit")
	assert.Len(t, store.appended, 2)
	assert.Equal(t, []string{dir}, lister.paths)

	require.Len(t, client.prompts, 1)
	prompt := client.prompts[0]
	assert.Contains(t, prompt, "# Koala")
	assert.Contains(t, prompt, "https://github.com/acme/koala")
	assert.Contains(t, prompt, "Committer: bob\nCommit content\n<message>\nextend a.md\n</message>\nCommit time: 2024-03-02 11:30:00\n")
	assert.Less(t, strings.Index(prompt, "Committer: bob"), strings.Index(prompt, "Committer: ada"))
}

func TestGenerateNoCommitsSkipsAnalysis(t *testing.T) {
	latest := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	lister := &fakeLister{commits: []*domain.Commit{
		{Sha: "m1", CommittedAt: latest.Add(-time.Hour)},
	}}
	client := &fakeClient{}
	store := &memStore{latest: latest, hasAny: true}

	entries, err := newGenerator(store, lister, client).Generate(context.Background(),
		&domain.Repository{ID: "r1"}, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, client.prompts)
	assert.Equal(t, latest, lister.since)
}

func TestGenerateMalformedOutputIsTransient(t *testing.T) {
	lister := &fakeLister{commits: []*domain.Commit{{Sha: "m1", CommittedAt: time.Now()}}}
	client := &fakeClient{response: "I could not summarize these commits."}
	store := &memStore{}

	_, err := newGenerator(store, lister, client).Generate(context.Background(),
		&domain.Repository{ID: "r1"}, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrNoPayload)
	assert.Empty(t, store.appended)
}

func TestGenerateRequiresWorkingCopy(t *testing.T) {
	lister := &fakeLister{commits: []*domain.Commit{{Sha: "m1", CommittedAt: time.Now()}}}
	client := &fakeClient{}

	_, err := newGenerator(&memStore{}, lister, client).Generate(context.Background(),
		&domain.Repository{ID: "r1"}, "")
	assert.ErrorIs(t, err, ErrNoWorkingCopy)
	assert.Empty(t, lister.paths)
	assert.Empty(t, client.prompts)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-02T11:30:00Z", time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC), true},
		{"2024-03-02T11:30:00+02:00", time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC), true},
		{"2024-03-02 11:30:00", time.Date(2024, 3, 2, 11, 30, 0, 0, time.UTC), true},
		{" 2024-03-02 ", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), true},
		{"yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), tt.in)
	}
}
