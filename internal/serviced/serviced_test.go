package serviced

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stevenaleach/ssmsrv/internal/config"
	"github.com/stevenaleach/ssmsrv/internal/frame"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/sampling"
)

func TestServeHandlesOneRequestPerConnection(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Variant:      sampling.VariantRWKV,
		MaxChars:     8192,
		SnapshotPath: filepath.Join(dir, "kv.snap"),
		ProfilePath:  filepath.Join(dir, "set.json"),
	}
	model := modelrt.NewFake(")~~~\n\n")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, model, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := frame.Write(conn, []byte("hello")); err != nil {
		t.Fatalf("frame.Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := frame.NewReader(conn).Read()
	if err != nil {
		t.Fatalf("frame.Read: %v", err)
	}
	if string(reply) != ")~~~\n\n" {
		t.Fatalf("reply = %q, want %q", reply, ")~~~\n\n")
	}
}

func TestServeHelpCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Variant:      sampling.VariantRWKV,
		MaxChars:     8192,
		SnapshotPath: filepath.Join(dir, "kv.snap"),
		ProfilePath:  filepath.Join(dir, "set.json"),
	}
	model := modelrt.NewFake("")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(cfg, model, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	frame.Write(conn, []byte("/?"))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := frame.NewReader(conn).Read()
	if err != nil {
		t.Fatalf("frame.Read: %v", err)
	}
	if len(reply) == 0 {
		t.Fatal("expected non-empty help reply")
	}
}
