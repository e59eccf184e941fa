package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// ErrNoPayload is returned when no candidate in a response parses
var ErrNoPayload = errors.New("no structured payload in response")

// any info string after the opening fence is skipped
var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(.*?)\\s*```")

var (
	tagPatternsMu sync.Mutex
	tagPatterns   = map[string]*regexp.Regexp{}
)

func tagPattern(tag string) *regexp.Regexp {
	tagPatternsMu.Lock()
	defer tagPatternsMu.Unlock()
	if re, ok := tagPatterns[tag]; ok {
		return re
	}
	q := regexp.QuoteMeta(tag)
	re := regexp.MustCompile(`(?s)<` + q + `>(.*?)</` + q + `>`)
	tagPatterns[tag] = re
	return re
}

// Candidates lists the texts a payload may hide in, in the order they are
// tried: the delimiter block, a fenced block (inside the delimiter block
// when there is one), then the whole response.
func Candidates(raw, tag string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	scope := raw
	if tag != "" {
		if m := tagPattern(tag).FindStringSubmatch(raw); m != nil {
			add(m[1])
			scope = m[1]
		}
	}
	if m := fencedBlock.FindStringSubmatch(scope); m != nil {
		add(m[1])
	}
	add(raw)
	return out
}

// Extract parses the first candidate of raw that decodes into T
func Extract[T any](raw, tag string) (T, error) {
	var zero T
	var lastErr error
	for _, c := range Candidates(raw, tag) {
		if c[0] != '{' && c[0] != '[' {
			continue
		}
		var out T
		if err := json.Unmarshal([]byte(c), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	if lastErr != nil {
		return zero, fmt.Errorf("%w: %v", ErrNoPayload, lastErr)
	}
	return zero, ErrNoPayload
}
