// Command ssmd is the recurrent-state chat service: a single TCP
// listener speaking the NUL-framed command protocol described by the
// service loop in internal/serviced. Adapted from the teacher's
// server.go main(): parse flags, build the server, load the model,
// bind the listener, serve.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/stevenaleach/ssmsrv/internal/config"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
	"github.com/stevenaleach/ssmsrv/internal/serviced"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Error("config", "error", err)
		os.Exit(1)
	}

	model, err := loadModel(cfg)
	if err != nil {
		log.Error("load model", "error", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("listen", "addr", addr, "error", err)
		os.Exit(1)
	}
	defer ln.Close()

	log.Info("listening", "addr", addr, "variant", cfg.Variant, "max_chars", cfg.MaxChars)

	srv := serviced.New(cfg, model, log)
	if err := srv.Serve(context.Background(), ln); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}

// loadModel builds the model runtime named by cfg. With -model left
// empty it uses the deterministic Fake runtime so the service can
// still be exercised end to end. With -model set it loads a real
// llama.cpp-backed model, which needs a cgo build; a build without cgo
// returns an error instead.
func loadModel(cfg *config.Config) (modelrt.Model, error) {
	if cfg.ModelPath == "" {
		return modelrt.NewFake(""), nil
	}
	return newLlamaModel(cfg)
}
