package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v55/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitHubAddress(t *testing.T) {
	tests := []struct {
		address string
		owner   string
		repo    string
		ok      bool
	}{
		{"https://github.com/AIDotNet/OpenDeepWiki.git", "AIDotNet", "OpenDeepWiki", true},
		{"https://github.com/acme/koala", "acme", "koala", true},
		{"git@github.com:acme/koala.git", "acme", "koala", true},
		{"https://gitlab.com/acme/koala.git", "", "", false},
		{"https://github.com/acme", "", "", false},
		{"/srv/git/koala", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			owner, repo, ok := ParseGitHubAddress(tt.address)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func newTestProber(t *testing.T, handler http.HandlerFunc) Prober {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return NewGitHubProberWithClient(client, nil)
}

func TestBranchHead(t *testing.T) {
	prober := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/koala/commits/main", r.URL.Path)
		_, _ = w.Write([]byte("4f2a9c"))
	})

	sha, supported, err := prober.BranchHead(context.Background(), "https://github.com/acme/koala.git", "main")
	require.NoError(t, err)
	assert.True(t, supported)
	assert.Equal(t, "4f2a9c", sha)
}

func TestBranchHeadUnsupportedHost(t *testing.T) {
	prober := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	})

	_, supported, err := prober.BranchHead(context.Background(), "https://example.com/acme/koala.git", "main")
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestBranchHeadError(t *testing.T) {
	prober := newTestProber(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, supported, err := prober.BranchHead(context.Background(), "https://github.com/acme/gone", "main")
	assert.True(t, supported)
	assert.Error(t, err)
}
