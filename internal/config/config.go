// Package config defines ServiceConfig and its command-line flag
// binding, grounded on the teacher's Config/setupFlags pair in
// server.go: a flat struct of flag.*Var bindings, parsed once at
// startup, no schema validation beyond flag's own type checking.
package config

import (
	"flag"
	"fmt"

	"github.com/stevenaleach/ssmsrv/internal/sampling"
)

// Config is the service's full startup configuration.
type Config struct {
	Host string
	Port int

	Variant   sampling.Variant
	ModelPath string
	ContextSize int
	GPULayers   int
	Threads     int

	// MaxChars is the per-reply character budget. Zero at flag-parse
	// time means "use the variant's default" (8192 for rwkv, 4096 for
	// mamba), resolved by Resolve.
	MaxChars int

	SnapshotPath string
	ProfilePath  string
}

// Resolve fills in variant-dependent defaults left unset by flags.
func (c *Config) Resolve() {
	if c.MaxChars == 0 {
		switch c.Variant {
		case sampling.VariantMamba:
			c.MaxChars = 4096
		default:
			c.MaxChars = 8192
		}
	}
}

// Parse binds and parses flags from args (excluding argv[0]) into a
// fresh Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ssmd", flag.ContinueOnError)

	c := &Config{}
	var variant string
	fs.StringVar(&c.Host, "host", "127.0.0.1", "address to listen on (loopback by default)")
	fs.IntVar(&c.Port, "port", 6502, "TCP port to listen on")
	fs.StringVar(&variant, "variant", "rwkv", "model variant: rwkv or mamba (selects sampling defaults and char budget)")
	fs.StringVar(&c.ModelPath, "model", "", "path to the GGUF model file")
	fs.IntVar(&c.ContextSize, "ctx-size", 1048576, "context size to request from the model runtime")
	fs.IntVar(&c.GPULayers, "gpu-layers", 999, "number of layers to offload to GPU")
	fs.IntVar(&c.Threads, "threads", 8, "number of CPU threads to use during generation")
	fs.IntVar(&c.MaxChars, "max-chars", 0, "character budget per reply (0 = variant default)")
	fs.StringVar(&c.SnapshotPath, "snapshot", "kv.snap", "default recurrent-state snapshot path")
	fs.StringVar(&c.ProfilePath, "profile", "set.json", "default sampling profile path")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	switch variant {
	case "rwkv":
		c.Variant = sampling.VariantRWKV
	case "mamba":
		c.Variant = sampling.VariantMamba
	default:
		return nil, fmt.Errorf("config: unknown -variant %q (want rwkv or mamba)", variant)
	}

	c.Resolve()
	return c, nil
}
