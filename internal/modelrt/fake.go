package modelrt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// Fake is a deterministic, pure-Go Model used in tests and anywhere a
// real model runtime is unavailable. It has no notion of a vocabulary
// distribution: Sample walks a scripted byte stream token-by-token,
// one byte per token, which is enough to exercise the stop-marker
// forcing rules in internal/generate without a real sampler.
type Fake struct {
	// Script is consumed one byte at a time by Sample, in order,
	// across the lifetime of the Fake. Reset leaves the cursor where it
	// is; LoadState restores the cursor saved alongside the state.
	Script []byte

	cursor int
	state  []Token // tokens the state has "seen", i.e. been Eval'd with
}

// NewFake builds a Fake whose Sample calls will emit script, one byte
// (one token) at a time, then EndOfStream forever after.
func NewFake(script string) *Fake {
	return &Fake{Script: []byte(script)}
}

func (f *Fake) Reset() {
	f.state = nil
}

// Tokenize treats each input byte as its own token, tagged by value
// plus a 1000 offset so prompt tokens are visually distinguishable
// from script tokens in tests. addBOS prepends token 1 (by
// convention; the engine never exercises this path with addBOS=true).
func (f *Fake) Tokenize(text []byte, addBOS bool) ([]Token, error) {
	out := make([]Token, 0, len(text)+1)
	if addBOS {
		out = append(out, Token(1))
	}
	for _, b := range text {
		out = append(out, Token(int(b)+1000))
	}
	return out, nil
}

func (f *Fake) Eval(_ context.Context, tokens []Token) error {
	f.state = append(f.state, tokens...)
	return nil
}

// Sample ignores all knobs and returns the next scripted byte as a
// token (offset by 2000 so it doesn't collide with Tokenize's
// range), or EndOfStream once the script is exhausted.
func (f *Fake) Sample(_ Params) (Token, error) {
	if f.cursor >= len(f.Script) {
		return EndOfStream, nil
	}
	b := f.Script[f.cursor]
	f.cursor++
	return Token(int(b) + 2000), nil
}

// Detokenize reverses both Tokenize's and Sample's offsets.
func (f *Fake) Detokenize(tokens []Token) []byte {
	out := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		switch {
		case t >= 2000 && t < 2256:
			out = append(out, byte(t-2000))
		case t >= 1000 && t < 1256:
			out = append(out, byte(t-1000))
		}
	}
	return out
}

// SaveState serializes the cursor and the evaluated-token history so
// LoadState can restore both exactly.
func (f *Fake) SaveState() ([]byte, int, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, int64(f.cursor)); err != nil {
		return nil, 0, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int64(len(f.state))); err != nil {
		return nil, 0, err
	}
	for _, t := range f.state {
		if err := binary.Write(&buf, binary.BigEndian, int32(t)); err != nil {
			return nil, 0, err
		}
	}
	return buf.Bytes(), len(f.state), nil
}

func (f *Fake) LoadState(blob []byte, tokenCount int) error {
	f.Reset()
	r := bytes.NewReader(blob)
	var cursor, n int64
	if err := binary.Read(r, binary.BigEndian, &cursor); err != nil {
		return fmt.Errorf("modelrt: fake load-state: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return fmt.Errorf("modelrt: fake load-state: %w", err)
	}
	state := make([]Token, n)
	for i := range state {
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return fmt.Errorf("modelrt: fake load-state: %w", err)
		}
		state[i] = Token(v)
	}
	f.cursor = int(cursor)
	f.state = state
	return nil
}

var _ Model = (*Fake)(nil)
