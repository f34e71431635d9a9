// Package generate implements the stop-marker forced-completion
// generation loop: the heart of the service. It samples one token at
// a time from a modelrt.Model, watching the running decoded text for
// three markers — a full closing fence, a partial closing fence, and
// a reopened fence — and either stops outright or forces the model's
// state to "see" the exact trailing bytes needed to complete the
// fence before stopping.
//
// Grounded directly on original_source's RWKV7.py gen_until_stop: the
// marker constants, the rightmost-match + longest-common-prefix
// forcing logic, and the tie-break order (full close, then partial
// end, then opener) are carried over unchanged in meaning.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
)

// Marker strings bounding the canonical turn fence
// "(Turn <n>) [<ROLE>]: <content>\n\n~~~(end)~~~\n\n".
const (
	Opener            = "\n~~~("
	FullClose         = ")~~~\n\n"
	PartialEnd        = "end)~~"
	ForceAfterOpener  = "end)~~~\n\n"
	ForceAfterPartial = "~\n\n"
)

// Result is the outcome of one generation run.
type Result struct {
	// Text is the full decoded reply, including any forced trailer.
	Text string
	// Tokens is every token the model state advanced over during this
	// run, in order: sampled tokens plus any forced-completion tokens.
	// It never includes the terminating id-0 token, which is never
	// evaluated.
	Tokens []modelrt.Token
	// BudgetHit is true when generation stopped because Text exceeded
	// maxChars rather than because a fence was produced.
	BudgetHit bool
}

// Error wraps a failure from the underlying model during generation,
// matching spec.md's GenerationError category.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("generate: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Run samples tokens from m until one of the stop conditions fires,
// honoring profile's knobs and penalizing over history (which the
// caller must seed with the prompt tokens already evaluated into m;
// Run appends generated tokens to it as it goes, so penalties apply
// to the union of prompt and generated tokens as spec.md requires).
// maxChars <= 0 means no cap. log may be nil; when non-nil, Run warns
// on it whenever a forced suffix's token round-trip decodes to
// something other than the exact bytes that were forced, which would
// mean the client-visible text and the model's own state have
// silently diverged.
func Run(ctx context.Context, m modelrt.Model, history []modelrt.Token, profile sampling.Profile, maxChars int, log *slog.Logger) (Result, error) {
	var text strings.Builder
	var produced []modelrt.Token

	params := func() modelrt.Params {
		return modelrt.Params{
			Temperature:      profile.Temperature,
			TopP:             profile.TopP,
			TopK:             profile.TopK,
			MinP:             profile.MinP,
			FrequencyPenalty: profile.FrequencyPenalty,
			PresencePenalty:  profile.PresencePenalty,
			RepeatPenalty:    profile.RepeatPenalty,
			History:          history,
		}
	}

	for {
		tok, err := m.Sample(params())
		if err != nil {
			return Result{}, &Error{Err: err}
		}

		// Rule: terminator token stops generation without being
		// evaluated and without advancing state.
		if tok == modelrt.EndOfStream {
			return Result{Text: text.String(), Tokens: produced}, nil
		}

		piece := m.Detokenize([]modelrt.Token{tok})
		text.Write(piece)
		cur := text.String()

		// Rule: hard character cap, also without eval.
		if maxChars > 0 && len(cur) > maxChars {
			return Result{Text: cur, Tokens: produced, BudgetHit: true}, nil
		}

		// Rule: full close already present stops generation without
		// evaluating the token that produced it.
		if strings.Contains(cur, FullClose) {
			return Result{Text: cur, Tokens: produced}, nil
		}

		// Rule: partial end ("end)~~") forces completion to "~\n\n".
		if j := strings.LastIndex(cur, PartialEnd); j != -1 {
			if err := m.Eval(ctx, []modelrt.Token{tok}); err != nil {
				return Result{}, &Error{Err: err}
			}
			history = append(history, tok)
			produced = append(produced, tok)

			after := cur[j+len(PartialEnd):]
			missing := forcedSuffix(after, ForceAfterPartial)
			if missing != "" {
				forced, toks, err := force(ctx, m, missing)
				if err != nil {
					return Result{}, err
				}
				warnOnDivergence(log, m, missing, toks)
				cur += forced
				produced = append(produced, toks...)
			}
			return Result{Text: cur, Tokens: produced}, nil
		}

		// Rule: opener ("\n~~~(") forces completion to "end)~~~\n\n".
		if i := strings.LastIndex(cur, Opener); i != -1 {
			if err := m.Eval(ctx, []modelrt.Token{tok}); err != nil {
				return Result{}, &Error{Err: err}
			}
			history = append(history, tok)
			produced = append(produced, tok)

			after := cur[i+len(Opener):]
			missing := forcedSuffix(after, ForceAfterOpener)
			if missing != "" {
				forced, toks, err := force(ctx, m, missing)
				if err != nil {
					return Result{}, err
				}
				warnOnDivergence(log, m, missing, toks)
				cur += forced
				produced = append(produced, toks...)
			}
			return Result{Text: cur, Tokens: produced}, nil
		}

		// Normal step: advance state by the sampled token and continue.
		if err := m.Eval(ctx, []modelrt.Token{tok}); err != nil {
			return Result{}, &Error{Err: err}
		}
		history = append(history, tok)
		produced = append(produced, tok)
	}
}

// forcedSuffix returns the portion of target not already covered by
// the longest common prefix between after and target.
func forcedSuffix(after, target string) string {
	n := 0
	for n < len(after) && n < len(target) && after[n] == target[n] {
		n++
	}
	return target[n:]
}

// warnOnDivergence logs when detokenizing the tokens actually forced
// into the model's state doesn't round-trip to the exact bytes the
// client will see appended to the reply. The two can diverge when the
// tokenizer has no clean token boundary for missing, in which case the
// model has evaluated something other than what was sent.
func warnOnDivergence(log *slog.Logger, m modelrt.Model, missing string, toks []modelrt.Token) {
	if log == nil || len(toks) == 0 {
		return
	}
	if got := string(m.Detokenize(toks)); got != missing {
		log.Warn("forced suffix round-trip diverged",
			"want", missing, "got", got)
	}
}

// force tokenizes missing (no BOS) and evaluates it so the model
// state has "seen" the bytes forced into the reply, returning the
// tokens it evaluated.
func force(ctx context.Context, m modelrt.Model, missing string) (string, []modelrt.Token, error) {
	toks, err := m.Tokenize([]byte(missing), false)
	if err != nil {
		return "", nil, &Error{Err: err}
	}
	if len(toks) == 0 {
		return missing, nil, nil
	}
	if err := m.Eval(ctx, toks); err != nil {
		return "", nil, &Error{Err: err}
	}
	return missing, toks, nil
}
