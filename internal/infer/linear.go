package infer

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// NumLinearFeatures is per-channel mean followed by per-channel std of the
// standardized window.
const NumLinearFeatures = 2 * Channels

// LinearModel is a softmax regression over window statistics. It is small
// enough to ship as YAML and runs without a native runtime.
type LinearModel struct {
	Params  `yaml:",inline"`
	Weights [][]float64 `yaml:"weights"`
	Bias    []float64   `yaml:"bias"`
}

// DefaultLinearModel separates the classes mostly on mean speed, with gait
// acceleration variance as a secondary cue.
func DefaultLinearModel() LinearModel {
	walk := make([]float64, NumLinearFeatures)
	ebike := make([]float64, NumLinearFeatures)
	walk[ChSpeed], ebike[ChSpeed] = -1.5, 1.5
	for _, ch := range []int{ChAccX, ChAccY, ChAccZ} {
		walk[Channels+ch], ebike[Channels+ch] = 0.5, -0.5
	}
	return LinearModel{
		Params: Params{
			InputScale:  1.0 / 32,
			InputZero:   0,
			OutputScale: 1.0 / 256,
			OutputZero:  -128,
		},
		Weights: [][]float64{walk, ebike},
		Bias:    []float64{0, 0},
	}
}

func LoadLinearModel(path string) (LinearModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return LinearModel{}, errors.Wrap(err, "read model")
	}
	var m LinearModel
	if err := yaml.Unmarshal(b, &m); err != nil {
		return LinearModel{}, errors.Wrapf(err, "parse model %s", path)
	}
	return m, m.Validate()
}

func (m LinearModel) Validate() error {
	if !(m.InputScale > 0) || !(m.OutputScale > 0) {
		return errors.New("model scales must be > 0")
	}
	if len(m.Weights) != NumClasses {
		return errors.Errorf("model has %d weight rows, want %d", len(m.Weights), NumClasses)
	}
	for i, row := range m.Weights {
		if len(row) != NumLinearFeatures {
			return errors.Errorf("weight row %d has %d columns, want %d", i, len(row), NumLinearFeatures)
		}
	}
	if len(m.Bias) != NumClasses {
		return errors.Errorf("model has %d biases, want %d", len(m.Bias), NumClasses)
	}
	return nil
}

// LinearEngine runs a LinearModel with gonum.
type LinearEngine struct {
	model LinearModel

	w    *mat.Dense
	b    *mat.VecDense
	x    *mat.Dense
	feat *mat.VecDense
	z    *mat.VecDense

	col       []float64
	out       []int8
	allocated bool
	haveInput bool
}

func NewLinearEngine(m LinearModel) *LinearEngine {
	return &LinearEngine{model: m}
}

func init() {
	registerEngine("linear", func(cfg EngineConfig) (Engine, error) {
		if cfg.ModelPath == "" {
			return NewLinearEngine(DefaultLinearModel()), nil
		}
		m, err := LoadLinearModel(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		return NewLinearEngine(m), nil
	})
}

func (e *LinearEngine) Allocate() error {
	if err := e.model.Validate(); err != nil {
		return err
	}
	flat := make([]float64, 0, NumClasses*NumLinearFeatures)
	for _, row := range e.model.Weights {
		flat = append(flat, row...)
	}
	e.w = mat.NewDense(NumClasses, NumLinearFeatures, flat)
	e.b = mat.NewVecDense(NumClasses, append([]float64(nil), e.model.Bias...))
	e.x = mat.NewDense(WindowLen, Channels, nil)
	e.feat = mat.NewVecDense(NumLinearFeatures, nil)
	e.z = mat.NewVecDense(NumClasses, nil)
	e.col = make([]float64, WindowLen)
	e.out = make([]int8, NumClasses)
	e.allocated = true
	return nil
}

func (e *LinearEngine) Params() Params {
	return e.model.Params
}

func (e *LinearEngine) SetInput(data []int8) error {
	if !e.allocated {
		return errors.New("engine not allocated")
	}
	if len(data) != WindowLen*Channels {
		return errors.Errorf("input has %d values, want %d", len(data), WindowLen*Channels)
	}
	p := e.model.Params
	for i, q := range data {
		e.x.Set(i/Channels, i%Channels, float64(int(q)-p.InputZero)*p.InputScale)
	}
	e.haveInput = true
	return nil
}

func (e *LinearEngine) Invoke() error {
	if !e.haveInput {
		return errors.New("no input set")
	}
	for ch := 0; ch < Channels; ch++ {
		mat.Col(e.col, ch, e.x)
		mean, std := stat.MeanStdDev(e.col, nil)
		e.feat.SetVec(ch, mean)
		e.feat.SetVec(Channels+ch, std)
	}
	e.z.MulVec(e.w, e.feat)
	e.z.AddVec(e.z, e.b)

	// Softmax, then quantize probabilities with the output parameters.
	top := mat.Max(e.z)
	sum := 0.0
	for c := 0; c < NumClasses; c++ {
		v := math.Exp(e.z.AtVec(c) - top)
		e.z.SetVec(c, v)
		sum += v
	}
	p := e.model.Params
	for c := 0; c < NumClasses; c++ {
		q := math.Round(e.z.AtVec(c)/sum/p.OutputScale) + float64(p.OutputZero)
		e.out[c] = int8(math.Max(math.MinInt8, math.Min(math.MaxInt8, q)))
	}
	return nil
}

func (e *LinearEngine) Output() ([]int8, error) {
	if !e.allocated {
		return nil, errors.New("engine not allocated")
	}
	return e.out, nil
}

func (e *LinearEngine) Close() error {
	e.allocated = false
	e.haveInput = false
	return nil
}
