package infer

import (
	"math"

	"github.com/pkg/errors"
)

// Normalization is the per-channel standardization the model was trained
// with.
type Normalization struct {
	Mean [Channels]float64 `yaml:"mean" json:"mean"`
	Std  [Channels]float64 `yaml:"std" json:"std"`
}

// DefaultNormalization is the table of the deployed walk/ebike model.
func DefaultNormalization() Normalization {
	return Normalization{
		Mean: [Channels]float64{
			1593.7335205078125, 2013.6827392578125, 832.3717041015625,
			-737.0647583007812, 296.4726257324219, 44.95747756958008,
			1.471951961517334, -0.6813814043998718,
		},
		Std: [Channels]float64{
			1080.1966552734375, 2071.291259765625, 7815.89013671875,
			1498.8814697265625, 1205.115234375, 1906.49658203125,
			2.258960008621216, 44.726905822753906,
		},
	}
}

func (n Normalization) Validate() error {
	for ch := 0; ch < Channels; ch++ {
		if !(n.Std[ch] > 0) || math.IsInf(n.Std[ch], 0) {
			return errors.Errorf("std[%d] (%s) must be > 0", ch, ChannelName(ch))
		}
		if math.IsNaN(n.Mean[ch]) || math.IsInf(n.Mean[ch], 0) {
			return errors.Errorf("mean[%d] (%s) must be finite", ch, ChannelName(ch))
		}
	}
	return nil
}

// Params are the engine's tensor quantization parameters.
type Params struct {
	InputScale  float64 `yaml:"input_scale" json:"input_scale"`
	InputZero   int     `yaml:"input_zero" json:"input_zero"`
	OutputScale float64 `yaml:"output_scale" json:"output_scale"`
	OutputZero  int     `yaml:"output_zero" json:"output_zero"`
}

// Quantizer maps float features to int8 as q = round(x*a + b), with a and b
// precomputed per channel from the normalization and input parameters.
type Quantizer struct {
	a, b [Channels]float64

	outScale float64
	outZero  int
}

func NewQuantizer(norm Normalization, p Params) (*Quantizer, error) {
	if err := norm.Validate(); err != nil {
		return nil, err
	}
	if !(p.InputScale > 0) {
		return nil, errors.Errorf("input scale %v must be > 0", p.InputScale)
	}
	q := &Quantizer{outScale: p.OutputScale, outZero: p.OutputZero}
	for ch := 0; ch < Channels; ch++ {
		inv := 1 / (norm.Std[ch] * p.InputScale)
		q.a[ch] = inv
		q.b[ch] = float64(p.InputZero) - norm.Mean[ch]*inv
	}
	return q, nil
}

func (q *Quantizer) Value(ch int, x float32) int8 {
	v := float64(x)*q.a[ch] + q.b[ch]
	if math.IsNaN(v) {
		v = q.b[ch]
	}
	v = math.Round(v)
	if v < math.MinInt8 {
		return math.MinInt8
	}
	if v > math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(v)
}

// Quantize writes w frame-major into dst, which must hold WindowLen*Channels.
func (q *Quantizer) Quantize(w *Window, dst []int8) {
	i := 0
	for t := range w {
		for ch := 0; ch < Channels; ch++ {
			dst[i] = q.Value(ch, w[t][ch])
			i++
		}
	}
}

func (q *Quantizer) Dequantize(raw int8) float32 {
	return float32(float64(int(raw)-q.outZero) * q.outScale)
}
