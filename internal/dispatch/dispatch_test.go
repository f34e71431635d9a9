package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
	"github.com/stevenaleach/ssmsrv/internal/snapshot"
)

func newSession(t *testing.T, script string) *Session {
	t.Helper()
	dir := t.TempDir()
	return &Session{
		Model:               modelrt.NewFake(script),
		Variant:             sampling.VariantRWKV,
		Profile:             sampling.Default(sampling.VariantRWKV),
		DefaultSnapshotPath: filepath.Join(dir, "kv.snap"),
		DefaultProfilePath:  filepath.Join(dir, "set.json"),
		MaxChars:            8192,
	}
}

func TestParseBangHeaderAllArgs(t *testing.T) {
	h, body, ok := ParseBangHeader("!a.snap b.json c.snap\nthe prompt")
	if !ok {
		t.Fatal("expected a bang header")
	}
	if h.LoadState != "a.snap" || h.LoadProfile != "b.json" || h.PostSave != "c.snap" {
		t.Fatalf("header = %+v", h)
	}
	if body != "the prompt" {
		t.Fatalf("body = %q", body)
	}
}

func TestParseBangHeaderNoHeader(t *testing.T) {
	_, body, ok := ParseBangHeader("plain prompt")
	if ok {
		t.Fatal("plain payload should not parse as a bang header")
	}
	if body != "plain prompt" {
		t.Fatalf("body = %q", body)
	}
}

// P6: bang-header missing ARG1 leaves in-memory state unchanged.
func TestBangHeaderMissingLoadLeavesStateUnchanged(t *testing.T) {
	s := newSession(t, ")~~~\n\n")
	reply := Dispatch(context.Background(), s, "!\nhello")
	if strings.Contains(reply, "error") {
		t.Fatalf("reply = %q, should not surface an error for a missing header arg", reply)
	}

	before := &snapshot.State{Blob: []byte{1, 2, 3}, TokenCount: 3}
	s.State = before
	Dispatch(context.Background(), s, "!"+filepath.Join(t.TempDir(), "missing.snap")+"\n")
	if s.State != before {
		t.Fatalf("State = %+v, want the in-memory state left as it was", s.State)
	}
}

func TestTemperatureGetSet(t *testing.T) {
	s := newSession(t, "")
	if got := Dispatch(context.Background(), s, "/t 0.42"); got != "" {
		t.Fatalf("set reply = %q, want empty ack", got)
	}
	got := Dispatch(context.Background(), s, "/t")
	if got != "temp = 0.42" {
		t.Fatalf("get reply = %q, want %q", got, "temp = 0.42")
	}
}

func TestUnknownSlashCommandIsEmptyReply(t *testing.T) {
	s := newSession(t, "")
	if got := Dispatch(context.Background(), s, "/bogus"); got != "" {
		t.Fatalf("reply = %q, want empty", got)
	}
}

func TestHelpContainsBannerAndSettings(t *testing.T) {
	s := newSession(t, "")
	reply := Dispatch(context.Background(), s, "/?")
	if !strings.HasPrefix(reply, "RWKV") {
		t.Fatalf("reply does not start with RWKV banner: %q", reply[:20])
	}
	if !strings.Contains(reply, "temp       = 0.700") {
		t.Fatal("reply missing formatted temperature")
	}
	if !strings.Contains(reply, "top_p      = 0.950") {
		t.Fatal("reply missing formatted top_p")
	}
}

func TestSaveThenLoadSnapshot(t *testing.T) {
	s := newSession(t, ")~~~\n\n")
	Dispatch(context.Background(), s, "hello")

	saveReply := Dispatch(context.Background(), s, "/save")
	if !strings.HasPrefix(saveReply, "[saved ->") {
		t.Fatalf("save reply = %q", saveReply)
	}

	loadReply := Dispatch(context.Background(), s, "/load")
	if !strings.HasPrefix(loadReply, "[loaded <-") {
		t.Fatalf("load reply = %q", loadReply)
	}
}

func TestLoadMissingSnapshotReportsError(t *testing.T) {
	s := newSession(t, "")
	reply := Dispatch(context.Background(), s, "/load nonexistent-file.snap")
	if !strings.HasPrefix(reply, "[load error]") {
		t.Fatalf("reply = %q, want a load-error reply", reply)
	}
}

// spec.md §4.6/§8: an empty body after a bang header means "just apply
// header effects and close" — generation must not run at all.
func TestEmptyBodyAfterBangHeaderSkipsGeneration(t *testing.T) {
	s := newSession(t, ")~~~\n\n")
	reply := Dispatch(context.Background(), s, "!\n")
	if reply != "" {
		t.Fatalf("reply = %q, want empty (no generation for an empty body)", reply)
	}
}

// Same boundary, but ARG3 names a post-save path: the snapshot must
// still be captured and saved even though nothing was generated.
func TestEmptyBodyWithPostSaveStillSaves(t *testing.T) {
	dir := t.TempDir()
	s := newSession(t, ")~~~\n\n")
	savePath := filepath.Join(dir, "post.snap")

	reply := Dispatch(context.Background(), s, "! - - "+savePath+"\n")
	if reply != "" {
		t.Fatalf("reply = %q, want empty", reply)
	}
	if _, err := os.Stat(savePath); err != nil {
		t.Fatalf("expected post-save snapshot at %s: %v", savePath, err)
	}
}

func TestPlainPromptGeneratesReply(t *testing.T) {
	s := newSession(t, ")~~~\n\n")
	reply := Dispatch(context.Background(), s, "hello there")
	if reply != ")~~~\n\n" {
		t.Fatalf("reply = %q, want %q", reply, ")~~~\n\n")
	}
}
