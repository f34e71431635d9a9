package turn

import (
	"context"
	"testing"

	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
)

func TestTakeTurnReturnsReplyAndSnapshot(t *testing.T) {
	m := modelrt.NewFake(")~~~\n\n")
	res, err := TakeTurn(context.Background(), m, "hello", nil, sampling.Default(sampling.VariantRWKV), 0, nil)
	if err != nil {
		t.Fatalf("TakeTurn: %v", err)
	}
	if res.Reply != ")~~~\n\n" {
		t.Fatalf("Reply = %q, want %q", res.Reply, ")~~~\n\n")
	}
	if res.Snapshot.Blob == nil {
		t.Fatal("Snapshot.Blob should be populated")
	}
	if res.PromptSize != len("hello") {
		t.Fatalf("PromptSize = %d, want %d", res.PromptSize, len("hello"))
	}
}

// P4: /save then generation then /load of the same file reproduces
// the same next-token distribution. Here, a snapshot captured right
// after the first fence is restored onto an independent model
// instance; its next turn must match, byte for byte, the continuation
// produced by the original instance carrying on in place.
func TestTakeTurnRestoresIncomingSnapshot(t *testing.T) {
	const script = ")~~~\n\n" + "REST)~~~\n\n"
	profile := sampling.Default(sampling.VariantRWKV)

	original := modelrt.NewFake(script)
	first, err := TakeTurn(context.Background(), original, "hello", nil, profile, 0, nil)
	if err != nil {
		t.Fatalf("first TakeTurn: %v", err)
	}

	continued, err := TakeTurn(context.Background(), original, "again", nil, profile, 0, nil)
	if err != nil {
		t.Fatalf("continued TakeTurn: %v", err)
	}

	restored := modelrt.NewFake(script)
	viaSnapshot, err := TakeTurn(context.Background(), restored, "again", &first.Snapshot, profile, 0, nil)
	if err != nil {
		t.Fatalf("restored TakeTurn: %v", err)
	}

	if viaSnapshot.Reply != continued.Reply {
		t.Fatalf("Reply via restored snapshot = %q, want %q (matching in-place continuation)", viaSnapshot.Reply, continued.Reply)
	}
}
