// Package turn implements the turn controller: the narrow operation
// that turns a prompt and an optional incoming recurrent-state
// snapshot into a reply and a freshly captured snapshot, without
// touching the transcript. Grounded on original_source's RWKV7.py
// turn(): optionally apply an incoming state, tokenize the prompt
// with no BOS, evaluate it, generate a reply, then capture state.
package turn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stevenaleach/ssmsrv/internal/generate"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
	"github.com/stevenaleach/ssmsrv/internal/snapshot"
)

// Error wraps a turn-controller failure.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("turn: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Result is the outcome of a single TakeTurn call.
type Result struct {
	Reply      string
	Snapshot   snapshot.State
	GenTokens  []modelrt.Token
	PromptSize int
	BudgetHit  bool
}

// TakeTurn applies incoming (if non-nil) to m, tokenizes prompt with
// no BOS, evaluates it, generates a reply under profile's knobs up to
// maxChars, and returns the reply alongside a freshly captured
// snapshot of m's resulting state. It never reads or writes a
// transcript; callers are responsible for recording turns. log may be
// nil and is passed straight through to generate.Run.
func TakeTurn(ctx context.Context, m modelrt.Model, prompt string, incoming *snapshot.State, profile sampling.Profile, maxChars int, log *slog.Logger) (Result, error) {
	if incoming != nil {
		m.Reset()
		if err := m.LoadState(incoming.Blob, incoming.TokenCount); err != nil {
			return Result{}, &Error{Err: fmt.Errorf("restore incoming state: %w", err)}
		}
	}

	promptTokens, err := m.Tokenize([]byte(prompt), false)
	if err != nil {
		return Result{}, &Error{Err: fmt.Errorf("tokenize prompt: %w", err)}
	}
	if err := m.Eval(ctx, promptTokens); err != nil {
		return Result{}, &Error{Err: fmt.Errorf("eval prompt: %w", err)}
	}

	history := append([]modelrt.Token{}, promptTokens...)
	res, err := generate.Run(ctx, m, history, profile, maxChars, log)
	if err != nil {
		return Result{}, &Error{Err: err}
	}

	blob, tokenCount, err := m.SaveState()
	if err != nil {
		return Result{}, &Error{Err: fmt.Errorf("capture state: %w", err)}
	}

	return Result{
		Reply:      res.Text,
		Snapshot:   snapshot.State{Blob: blob, TokenCount: tokenCount},
		GenTokens:  res.Tokens,
		PromptSize: len(promptTokens),
		BudgetHit:  res.BudgetHit,
	}, nil
}
