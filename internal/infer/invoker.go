package infer

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Invoker quantizes windows, runs the engine and decodes its output. It is
// owned by the window task and is not safe for concurrent use; only Stats may
// be called from other goroutines.
type Invoker struct {
	engine Engine
	norm   Normalization
	log    *zap.SugaredLogger

	quant *Quantizer
	input []int8
	ready bool

	runs, failures atomic.Uint64
}

func NewInvoker(engine Engine, norm Normalization, logger *zap.SugaredLogger) *Invoker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Invoker{
		engine: engine,
		norm:   norm,
		log:    logger,
		input:  make([]int8, WindowLen*Channels),
	}
}

// Init allocates the engine and precomputes the quantizer from the engine's
// parameters. Until it succeeds Infer returns no result.
func (inv *Invoker) Init() error {
	inv.ready = false
	if inv.engine == nil {
		return errors.New("no inference engine")
	}
	if err := inv.engine.Allocate(); err != nil {
		return errors.Wrap(err, "allocate")
	}
	p := inv.engine.Params()
	q, err := NewQuantizer(inv.norm, p)
	if err != nil {
		return err
	}
	inv.quant = q
	inv.ready = true
	inv.log.Infow("inference ready",
		"in_scale", p.InputScale, "in_zero", p.InputZero,
		"out_scale", p.OutputScale, "out_zero", p.OutputZero)
	return nil
}

func (inv *Invoker) Ready() bool {
	return inv.ready
}

// Infer runs one forward pass. It returns false when the invoker is not
// initialized or the engine fails; failures are logged and never fatal.
func (inv *Invoker) Infer(w *Window) (Result, bool) {
	if !inv.ready || w == nil {
		return Result{}, false
	}
	inv.runs.Add(1)
	inv.quant.Quantize(w, inv.input)
	if err := inv.engine.SetInput(inv.input); err != nil {
		return inv.fail("set input", err)
	}
	if err := inv.engine.Invoke(); err != nil {
		return inv.fail("invoke", err)
	}
	out, err := inv.engine.Output()
	if err != nil {
		return inv.fail("output", err)
	}
	if len(out) < NumClasses {
		return inv.fail("output", errors.Errorf("got %d outputs, want %d", len(out), NumClasses))
	}

	var r Result
	best := 0
	for c := 0; c < NumClasses; c++ {
		r.Raw[c] = out[c]
		r.Probs[c] = inv.quant.Dequantize(out[c])
		if out[c] > out[best] {
			best = c
		}
	}
	r.Class = Class(best)
	return r, true
}

func (inv *Invoker) fail(stage string, err error) (Result, bool) {
	n := inv.failures.Add(1)
	inv.log.Warnw("inference failed", "stage", stage, "error", err, "failures", n)
	return Result{}, false
}

type InvokerStats struct {
	Runs     uint64 `json:"runs"`
	Failures uint64 `json:"failures"`
}

// Stats reports forward passes attempted and failed.
func (inv *Invoker) Stats() InvokerStats {
	return InvokerStats{Runs: inv.runs.Load(), Failures: inv.failures.Load()}
}

func (inv *Invoker) Close() error {
	inv.ready = false
	if inv.engine == nil {
		return nil
	}
	return inv.engine.Close()
}
