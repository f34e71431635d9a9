package modelrt

import (
	"context"
	"testing"
)

func TestFakeTokenizeDetokenizeRoundTrip(t *testing.T) {
	f := NewFake("")
	toks, err := f.Tokenize([]byte("ab"), false)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if got := string(f.Detokenize(toks)); got != "ab" {
		t.Fatalf("Detokenize = %q, want %q", got, "ab")
	}
}

func TestFakeSampleConsumesScriptThenEOS(t *testing.T) {
	f := NewFake("hi")
	t1, _ := f.Sample(Params{})
	t2, _ := f.Sample(Params{})
	t3, _ := f.Sample(Params{})
	if f.Detokenize([]Token{t1, t2}) == nil {
		t.Fatal("expected decoded bytes")
	}
	if string(f.Detokenize([]Token{t1, t2})) != "hi" {
		t.Fatalf("decoded = %q, want %q", f.Detokenize([]Token{t1, t2}), "hi")
	}
	if t3 != EndOfStream {
		t.Fatalf("t3 = %v, want EndOfStream", t3)
	}
}

func TestFakeSaveLoadStateRoundTrip(t *testing.T) {
	f := NewFake("hi")
	f.Sample(Params{})
	if err := f.Eval(context.Background(), []Token{1001, 1002}); err != nil {
		t.Fatalf("Eval: %v", err)
	}

	blob, n, err := f.SaveState()
	if err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	g := NewFake("hi")
	if err := g.LoadState(blob, n); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if g.cursor != f.cursor {
		t.Fatalf("cursor = %d, want %d", g.cursor, f.cursor)
	}
	if len(g.state) != len(f.state) {
		t.Fatalf("state length = %d, want %d", len(g.state), len(f.state))
	}
}
