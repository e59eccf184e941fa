// Package llm talks to the language-analysis collaborator.
package llm

import (
	"context"
)

// Options tunes one generation
type Options struct {
	MaxTokens   int
	Temperature float32
	System      string
}

// ChunkStream yields generated text incrementally. Recv returns io.EOF after the last chunk.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

// Client produces text from a prompt
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
	Stream(ctx context.Context, prompt string, opts Options) (ChunkStream, error)
}
