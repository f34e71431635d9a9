//go:build !cgo

package main

import (
	"fmt"

	"github.com/stevenaleach/ssmsrv/internal/config"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
)

func newLlamaModel(cfg *config.Config) (modelrt.Model, error) {
	return nil, fmt.Errorf("ssmd: built without cgo: cannot load model %q, rerun with CGO_ENABLED=1 or omit -model to use the fake runtime", cfg.ModelPath)
}
