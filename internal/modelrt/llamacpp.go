//go:build cgo

package modelrt

/*
#cgo CFLAGS: -Ofast -std=c11 -fPIC
#cgo CXXFLAGS: -std=c++11 -fPIC
#cgo LDFLAGS: -lllama

#include <stdlib.h>
#include "llama.h"

struct ssm_sample_params {
	float temperature;
	float top_p;
	int32_t top_k;
	float min_p;
	float frequency_penalty;
	float presence_penalty;
	float repeat_penalty;
};

static int ssm_eval(struct llama_context *ctx, int pos, llama_token *tokens, int n_tokens) {
	if (n_tokens < 1) return 0;
	llama_batch batch = llama_batch_init(n_tokens, 0, 1);
	batch.n_tokens = n_tokens;
	for (int i = 0; i < n_tokens; i++) {
		batch.token[i] = tokens[i];
		batch.pos[i] = pos + i;
		batch.seq_id[i][0] = 0;
		batch.n_seq_id[i] = 1;
	}
	batch.logits[n_tokens - 1] = true;
	int e = llama_decode(ctx, batch);
	llama_batch_free(batch);
	return e;
}

static llama_token ssm_sample(
	struct llama_context *ctx,
	struct ssm_sample_params *params,
	llama_token *history, int n_history
) {
	float *logits = llama_get_logits(ctx);
	if (logits == NULL) {
		return 0;
	}
	const struct llama_model *model = llama_get_model(ctx);
	int n_vocab = llama_n_vocab(model);

	llama_token_data *data = malloc(sizeof(llama_token_data) * n_vocab);
	if (data == NULL) {
		return 0;
	}
	for (int i = 0; i < n_vocab; i++) {
		data[i].id = i;
		data[i].logit = logits[i];
		data[i].p = 0;
	}
	llama_token_data_array candidates = {data, (size_t)n_vocab, false};

	if (n_history > 0) {
		llama_sample_repetition_penalties(
			ctx, &candidates,
			history, n_history,
			params->repeat_penalty,
			params->frequency_penalty,
			params->presence_penalty
		);
	}

	llama_token tok;
	if (params->temperature <= 0) {
		tok = llama_sample_token_greedy(ctx, &candidates);
	} else {
		llama_sample_top_k(ctx, &candidates, params->top_k, 1);
		if (params->min_p > 0) {
			llama_sample_min_p(ctx, &candidates, params->min_p, 1);
		}
		llama_sample_top_p(ctx, &candidates, params->top_p, 1);
		llama_sample_temp(ctx, &candidates, params->temperature);
		tok = llama_sample_token(ctx, &candidates);
	}

	free(data);
	return tok;
}
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"
)

// LlamaCpp binds Model to an in-process llama.cpp context via cgo. It
// is the production adapter for the out-of-scope model runtime;
// construction parameters (thread count, GPU layers) are plumbed
// through from config even though the runtime's own behavior is not
// specified here.
type LlamaCpp struct {
	model *C.struct_llama_model
	ctx   *C.struct_llama_context
	pos   int
}

// LoadLlamaCpp loads a GGUF model file and creates a context sized for
// nCtx tokens, offloading gpuLayers layers and using threads CPU
// threads for the rest.
func LoadLlamaCpp(modelPath string, nCtx, gpuLayers, threads int) (*LlamaCpp, error) {
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	mparams := C.llama_model_default_params()
	mparams.n_gpu_layers = C.int32_t(gpuLayers)

	model := C.llama_load_model_from_file(cPath, mparams)
	if model == nil {
		return nil, fmt.Errorf("modelrt: failed to load model %q", modelPath)
	}

	cparams := C.llama_context_default_params()
	cparams.n_ctx = C.uint32_t(nCtx)
	cparams.n_threads = C.int32_t(threads)
	cparams.n_threads_batch = C.int32_t(threads)

	ctx := C.llama_new_context_with_model(model, cparams)
	if ctx == nil {
		C.llama_free_model(model)
		return nil, fmt.Errorf("modelrt: failed to create context for %q", modelPath)
	}

	return &LlamaCpp{model: model, ctx: ctx}, nil
}

// Close releases the underlying llama.cpp context and model.
func (l *LlamaCpp) Close() {
	if l.ctx != nil {
		C.llama_free(l.ctx)
		l.ctx = nil
	}
	if l.model != nil {
		C.llama_free_model(l.model)
		l.model = nil
	}
}

func (l *LlamaCpp) Reset() {
	C.llama_kv_cache_clear(l.ctx)
	l.pos = 0
}

func (l *LlamaCpp) Tokenize(text []byte, addBOS bool) ([]Token, error) {
	if len(text) == 0 {
		return nil, nil
	}
	maxTokens := len(text) + 8
	buf := make([]C.llama_token, maxTokens)
	n := C.llama_tokenize(
		l.model,
		(*C.char)(unsafe.Pointer(&text[0])),
		C.int32_t(len(text)),
		(*C.llama_token)(unsafe.Pointer(&buf[0])),
		C.int32_t(maxTokens),
		C.bool(addBOS),
		C.bool(false),
	)
	if n < 0 {
		return nil, fmt.Errorf("modelrt: tokenize failed")
	}
	out := make([]Token, n)
	for i := 0; i < int(n); i++ {
		out[i] = Token(buf[i])
	}
	return out, nil
}

func (l *LlamaCpp) Eval(ctx context.Context, tokens []Token) error {
	if len(tokens) == 0 {
		return nil
	}
	cTokens := make([]C.llama_token, len(tokens))
	for i, t := range tokens {
		cTokens[i] = C.llama_token(t)
	}
	rc := C.ssm_eval(l.ctx, C.int(l.pos), (*C.llama_token)(unsafe.Pointer(&cTokens[0])), C.int(len(cTokens)))
	if rc != 0 {
		return fmt.Errorf("modelrt: eval failed (rc=%d)", int(rc))
	}
	l.pos += len(tokens)
	return nil
}

func (l *LlamaCpp) Sample(p Params) (Token, error) {
	history := make([]C.llama_token, len(p.History))
	for i, t := range p.History {
		history[i] = C.llama_token(t)
	}
	var histPtr *C.llama_token
	if len(history) > 0 {
		histPtr = (*C.llama_token)(unsafe.Pointer(&history[0]))
	}

	cp := C.struct_ssm_sample_params{
		temperature:       C.float(p.Temperature),
		top_p:             C.float(p.TopP),
		top_k:             C.int32_t(p.TopK),
		min_p:             C.float(p.MinP),
		frequency_penalty: C.float(p.FrequencyPenalty),
		presence_penalty:  C.float(p.PresencePenalty),
		repeat_penalty:    C.float(p.RepeatPenalty),
	}

	tok := C.ssm_sample(l.ctx, &cp, histPtr, C.int(len(history)))
	return Token(tok), nil
}

func (l *LlamaCpp) Detokenize(tokens []Token) []byte {
	var out []byte
	var tmp [256]byte
	for _, t := range tokens {
		n := C.llama_token_to_piece(
			l.model,
			C.llama_token(t),
			(*C.char)(unsafe.Pointer(&tmp[0])),
			C.int32_t(len(tmp)),
			C.int32_t(0),
			C.bool(false),
		)
		if n < 0 {
			continue
		}
		out = append(out, tmp[:n]...)
	}
	return out
}

func (l *LlamaCpp) SaveState() ([]byte, int, error) {
	size := C.llama_state_get_size(l.ctx)
	buf := make([]byte, size)
	written := C.llama_state_get_data(l.ctx, (*C.uint8_t)(unsafe.Pointer(&buf[0])), size)
	if written == 0 {
		return nil, 0, fmt.Errorf("modelrt: save-state wrote no bytes")
	}
	return buf[:written], l.pos, nil
}

func (l *LlamaCpp) LoadState(blob []byte, tokenCount int) error {
	l.Reset()
	if len(blob) == 0 {
		return fmt.Errorf("modelrt: empty state blob")
	}
	read := C.llama_state_set_data(l.ctx, (*C.uint8_t)(unsafe.Pointer(&blob[0])), C.size_t(len(blob)))
	if int(read) != len(blob) {
		l.Reset()
		return fmt.Errorf("modelrt: load-state read %d of %d bytes", int(read), len(blob))
	}
	l.pos = tokenCount
	return nil
}

var _ Model = (*LlamaCpp)(nil)
