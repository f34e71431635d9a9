// Package modelrt defines the narrow capability boundary between the
// service and the recurrent-state model runtime. The runtime itself
// (tokenizer, sampler, evaluator, state codec) is an external
// collaborator; this package only describes the shape of the contract
// and routes to a concrete adapter.
package modelrt

import "context"

// Token is a single vocabulary id.
type Token int32

// Params carries the sampling knobs and penalty history a single
// Sample call needs. It mirrors sampling.Profile field-for-field but
// lives here to keep modelrt free of a dependency on the sampling
// package.
type Params struct {
	Temperature      float64
	TopP             float64
	TopK             int
	MinP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	RepeatPenalty    float64

	// History is the combined prompt+generated token window penalties
	// are computed against, oldest first.
	History []Token
}

// Model is the full set of primitives the generation engine and turn
// controller require of a model runtime. An implementation owns
// exactly one live recurrent state at a time; it is not safe for
// concurrent use from multiple goroutines.
type Model interface {
	// Reset clears recurrent state back to empty (no tokens processed).
	Reset()

	// Tokenize converts text to token ids. addBOS controls whether a
	// beginning-of-sequence token is prepended; the turn controller
	// always calls this with addBOS=false per spec.
	Tokenize(text []byte, addBOS bool) ([]Token, error)

	// Eval advances the recurrent state by the given tokens, in order.
	Eval(ctx context.Context, tokens []Token) error

	// Sample draws one token id from the current state under the
	// given knobs. Does not advance state; the caller decides whether
	// to Eval the sampled token.
	Sample(p Params) (Token, error)

	// Detokenize renders tokens back to UTF-8 bytes. Decode errors are
	// replaced, never returned, matching the Python original's
	// errors="ignore"/"replace" behavior.
	Detokenize(tokens []Token) []byte

	// SaveState captures the current recurrent state as an opaque
	// blob plus the token count it covers.
	SaveState() (blob []byte, tokenCount int, err error)

	// LoadState restores a previously captured state. Implementations
	// must Reset() first if the load fails partway, so the model is
	// never left in a state that straddles old and new.
	LoadState(blob []byte, tokenCount int) error
}

// EndOfStream is the sentinel token id the generation engine treats as
// "stop sampling, do not evaluate".
const EndOfStream Token = 0
