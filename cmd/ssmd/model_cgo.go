//go:build cgo

package main

import (
	"github.com/stevenaleach/ssmsrv/internal/config"
	"github.com/stevenaleach/ssmsrv/internal/modelrt"
)

func newLlamaModel(cfg *config.Config) (modelrt.Model, error) {
	return modelrt.LoadLlamaCpp(cfg.ModelPath, cfg.ContextSize, cfg.GPULayers, cfg.Threads)
}
