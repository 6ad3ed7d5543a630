//go:build tflite

package infer

import (
	"runtime"

	tflite "github.com/mattn/go-tflite"
	"github.com/pkg/errors"
)

func init() {
	registerEngine("tflite", func(cfg EngineConfig) (Engine, error) {
		if cfg.ModelPath == "" {
			return nil, errors.New("tflite engine needs ml.model_path")
		}
		return &TFLiteEngine{path: cfg.ModelPath, threads: cfg.Threads}, nil
	})
}

// TFLiteEngine runs an int8-quantized .tflite model.
type TFLiteEngine struct {
	path    string
	threads int

	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	params  Params
	out     []int8
}

func (e *TFLiteEngine) Allocate() error {
	e.model = tflite.NewModelFromFile(e.path)
	if e.model == nil {
		return errors.Errorf("failed to load model %s", e.path)
	}
	e.options = tflite.NewInterpreterOptions()
	if e.options == nil {
		return errors.New("interpreter options failed to be created")
	}
	threads := e.threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	e.options.SetNumThread(threads)

	e.interp = tflite.NewInterpreter(e.model, e.options)
	if e.interp == nil {
		return errors.New("failed to create interpreter")
	}
	if status := e.interp.AllocateTensors(); status != tflite.OK {
		return errors.New("failed to allocate tensors")
	}

	in := e.interp.GetInputTensor(0)
	out := e.interp.GetOutputTensor(0)
	if in == nil || out == nil {
		return errors.New("input/output tensor is missing")
	}
	if in.Type() != tflite.Int8 || out.Type() != tflite.Int8 {
		return errors.Errorf("model tensors are %s/%s, want int8", in.Type(), out.Type())
	}
	if n := in.ByteSize(); n != WindowLen*Channels {
		return errors.Errorf("input tensor holds %d bytes, want %d", n, WindowLen*Channels)
	}
	inQ := in.QuantizationParams()
	outQ := out.QuantizationParams()
	e.params = Params{
		InputScale:  inQ.Scale,
		InputZero:   inQ.ZeroPoint,
		OutputScale: outQ.Scale,
		OutputZero:  outQ.ZeroPoint,
	}
	e.out = make([]int8, out.ByteSize())
	return nil
}

func (e *TFLiteEngine) Params() Params {
	return e.params
}

func (e *TFLiteEngine) SetInput(data []int8) error {
	if e.interp == nil {
		return errors.New("engine not allocated")
	}
	if status := e.interp.GetInputTensor(0).CopyFromBuffer(data); status != tflite.OK {
		return errors.New("copying to buffer failed")
	}
	return nil
}

func (e *TFLiteEngine) Invoke() error {
	if e.interp == nil {
		return errors.New("engine not allocated")
	}
	if status := e.interp.Invoke(); status != tflite.OK {
		return errors.New("invoke failed")
	}
	return nil
}

func (e *TFLiteEngine) Output() ([]int8, error) {
	if e.interp == nil {
		return nil, errors.New("engine not allocated")
	}
	if status := e.interp.GetOutputTensor(0).CopyToBuffer(e.out); status != tflite.OK {
		return nil, errors.New("copying from buffer failed")
	}
	return e.out, nil
}

func (e *TFLiteEngine) Close() error {
	if e.interp != nil {
		e.interp.Delete()
		e.interp = nil
	}
	if e.options != nil {
		e.options.Delete()
		e.options = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}
