package reduce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/rendezvous/pkg/collective"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// A hung module would wedge the whole barrier, so each run is bounded.
const wasmRunTimeout = 30 * time.Second

// WasmReducer runs a WASI command module once per round: the votes are
// written to the module's stdin as a JSON array of {"rank", "data"} objects
// and the reduced value is read back from its stdout.
type WasmReducer struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// NewWasm compiles the module once. Every Reduce instantiates a fresh
// instance, so module state cannot leak between rounds.
func NewWasm(ctx context.Context, binary []byte) (*WasmReducer, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	// Instantiate WASI, which implements host functions needed for TinyGo to
	// implement `panic`.
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		_ = r.Close(ctx)

		return nil, errors.Join(errors.New("failed to compile Wasm module"), err)
	}

	return &WasmReducer{runtime: r, compiled: compiled}, nil
}

type wasmVote struct {
	Rank int             `json:"rank"`
	Data json.RawMessage `json:"data"`
}

func (w *WasmReducer) Reduce(votes []collective.Vote[json.RawMessage]) (json.RawMessage, error) {
	if len(votes) == 0 {
		return nil, ErrNoVotes
	}

	in := make([]wasmVote, 0, len(votes))
	for _, v := range votes {
		in = append(in, wasmVote{Rank: v.Rank, Data: v.Data})
	}
	input, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal votes: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wasmRunTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("wasm reducer failed: %w: %s", err, stderr.String())
		}

		return nil, fmt.Errorf("wasm reducer failed: %w", err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		return nil, fmt.Errorf("wasm reducer produced invalid JSON: %q", out)
	}

	return json.RawMessage(out), nil
}

// Close releases the runtime and its compiled module.
func (w *WasmReducer) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
