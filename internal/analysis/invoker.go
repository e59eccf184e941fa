// Package analysis wraps calls to the language-analysis collaborator in a
// retry and structured-extraction envelope.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/kurihiro0119/docsync/internal/errors"
	"github.com/kurihiro0119/docsync/internal/llm"
	"github.com/kurihiro0119/docsync/internal/metrics"
)

// Policy is the retry schedule. The delay after attempt n is 2^n * BaseDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy makes 3 attempts, waiting 2s then 4s between them
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the wait after the given 1-based attempt
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// Request is one analysis call
type Request struct {
	Prompt  string
	Tag     string // delimiter block name, e.g. "changelog"
	Options llm.Options
	Stream  bool
}

// Invoker calls the collaborator and retries failed calls and failed extractions
type Invoker struct {
	client llm.Client
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewInvoker creates an invoker
func NewInvoker(client llm.Client, policy Policy, logger *slog.Logger) *Invoker {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{client: client, policy: policy, logger: logger, sleep: sleepContext}
}

// Client returns the underlying collaborator
func (inv *Invoker) Client() llm.Client {
	return inv.client
}

// Run performs req and extracts a T from the response. Both call and
// extraction failures are retried; once attempts run out the last error is
// returned as a transient external error.
func Run[T any](ctx context.Context, inv *Invoker, req Request) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := inv.policy.MaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		metrics.AnalysisAttempts.WithLabelValues(req.Tag).Inc()

		raw, err := inv.call(ctx, req)
		if err == nil {
			var out T
			if out, err = Extract[T](raw, req.Tag); err == nil {
				return out, nil
			}
			metrics.AnalysisFailures.WithLabelValues(req.Tag, "extract").Inc()
		} else {
			metrics.AnalysisFailures.WithLabelValues(req.Tag, "call").Inc()
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("analysis %q interrupted: %w", req.Tag, ctxErr)
		}

		inv.logger.Warn("analysis attempt failed", "tag", req.Tag, "attempt", attempt, "max_attempts", maxAttempts, "error", err)
		if attempt < maxAttempts {
			if err := inv.sleep(ctx, inv.policy.Delay(attempt)); err != nil {
				return zero, fmt.Errorf("analysis %q interrupted: %w", req.Tag, err)
			}
		}
	}

	return zero, apperrors.NewTransientError(
		fmt.Sprintf("analysis %q failed after %d attempts", req.Tag, maxAttempts), lastErr)
}

// call returns the full response text. Streams are drained completely first.
func (inv *Invoker) call(ctx context.Context, req Request) (string, error) {
	if !req.Stream {
		return inv.client.Complete(ctx, req.Prompt, req.Options)
	}

	stream, err := inv.client.Stream(ctx, req.Prompt, req.Options)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("stream interrupted after %d bytes: %w", b.Len(), err)
		}
		b.WriteString(chunk)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
