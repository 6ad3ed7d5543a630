package infer

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"gopkg.in/yaml.v3"
)

type stubEngine struct {
	params      Params
	allocErr    error
	invokeErr   error
	out         []int8
	input       []int8
	invocations int
	closed      bool
}

func (s *stubEngine) Allocate() error { return s.allocErr }

func (s *stubEngine) Params() Params { return s.params }

func (s *stubEngine) SetInput(d []int8) error {
	s.input = append(s.input[:0], d...)
	return nil
}

func (s *stubEngine) Invoke() error {
	s.invocations++
	return s.invokeErr
}

func (s *stubEngine) Output() ([]int8, error) { return s.out, nil }

func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

func identityNorm() Normalization {
	var n Normalization
	for ch := 0; ch < Channels; ch++ {
		n.Std[ch] = 1
	}
	return n
}

func TestQuantizeIdentity(t *testing.T) {
	q, err := NewQuantizer(identityNorm(), Params{InputScale: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.Value(ChAccX, 5.0), test.ShouldEqual, int8(5))
	test.That(t, q.Value(ChAccX, 2.5), test.ShouldEqual, int8(3))
	test.That(t, q.Value(ChAccX, -2.5), test.ShouldEqual, int8(-3))
	test.That(t, q.Value(ChAccX, 1000), test.ShouldEqual, int8(127))
	test.That(t, q.Value(ChAccX, -1000), test.ShouldEqual, int8(-128))
	test.That(t, q.Value(ChAccX, float32(math.NaN())), test.ShouldEqual, int8(0))
}

func TestQuantizeMatchesDirectFormula(t *testing.T) {
	norm := DefaultNormalization()
	p := Params{InputScale: 0.0421, InputZero: -3}
	q, err := NewQuantizer(norm, p)
	test.That(t, err, test.ShouldBeNil)
	for ch := 0; ch < Channels; ch++ {
		for _, x := range []float32{-3000, -12.5, 0, 1.4, 250, 4100} {
			s := norm.Std[ch] * p.InputScale
			want := math.Round(float64(x)/s + (float64(p.InputZero) - norm.Mean[ch]/s))
			want = math.Max(-128, math.Min(127, want))
			test.That(t, float64(q.Value(ch, x)), test.ShouldAlmostEqual, want, 1)
		}
	}
}

func TestQuantizerRejectsBadParams(t *testing.T) {
	_, err := NewQuantizer(identityNorm(), Params{InputScale: 0})
	test.That(t, err, test.ShouldNotBeNil)

	norm := identityNorm()
	norm.Std[ChSpeed] = 0
	_, err = NewQuantizer(norm, Params{InputScale: 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "speed_mps")
}

func TestQuantizeLayoutFrameMajor(t *testing.T) {
	q, err := NewQuantizer(identityNorm(), Params{InputScale: 1})
	test.That(t, err, test.ShouldBeNil)
	var w Window
	w[0][ChAccY] = 7
	w[WindowLen-1][ChTurnRate] = -9
	dst := make([]int8, WindowLen*Channels)
	q.Quantize(&w, dst)
	test.That(t, dst[1], test.ShouldEqual, int8(7))
	test.That(t, dst[len(dst)-1], test.ShouldEqual, int8(-9))
}

func TestInvokerNotReady(t *testing.T) {
	eng := &stubEngine{params: Params{InputScale: 1, OutputScale: 1}, out: []int8{1, 2}}
	inv := NewInvoker(eng, identityNorm(), nil)
	var w Window
	_, ok := inv.Infer(&w)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, eng.invocations, test.ShouldEqual, 0)

	eng.allocErr = errors.New("arena too small")
	test.That(t, inv.Init(), test.ShouldNotBeNil)
	test.That(t, inv.Ready(), test.ShouldBeFalse)
	_, ok = inv.Infer(&w)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestInvokerDecodesOutput(t *testing.T) {
	eng := &stubEngine{
		params: Params{InputScale: 1, InputZero: 0, OutputScale: 1.0 / 256, OutputZero: -128},
		out:    []int8{-100, 90},
	}
	inv := NewInvoker(eng, identityNorm(), nil)
	test.That(t, inv.Init(), test.ShouldBeNil)

	var w Window
	w[3][ChGyroZ] = 5
	r, ok := inv.Infer(&w)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Class, test.ShouldEqual, EBike)
	test.That(t, r.Raw, test.ShouldResemble, [NumClasses]int8{-100, 90})
	test.That(t, float64(r.Probs[0]), test.ShouldAlmostEqual, 28.0/256, 1e-6)
	test.That(t, float64(r.Probs[1]), test.ShouldAlmostEqual, 218.0/256, 1e-6)
	test.That(t, eng.input[3*Channels+ChGyroZ], test.ShouldEqual, int8(5))
	test.That(t, len(eng.input), test.ShouldEqual, WindowLen*Channels)
}

func TestInvokerTieFavorsFirstClass(t *testing.T) {
	eng := &stubEngine{params: Params{InputScale: 1, OutputScale: 1}, out: []int8{12, 12}}
	inv := NewInvoker(eng, identityNorm(), nil)
	test.That(t, inv.Init(), test.ShouldBeNil)
	var w Window
	r, ok := inv.Infer(&w)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Class, test.ShouldEqual, Walk)
}

func TestInvokerEngineFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	eng := &stubEngine{params: Params{InputScale: 1, OutputScale: 1}, out: []int8{0, 1}, invokeErr: errors.New("boom")}
	inv := NewInvoker(eng, identityNorm(), zap.New(core).Sugar())
	test.That(t, inv.Init(), test.ShouldBeNil)
	var w Window
	_, ok := inv.Infer(&w)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, logs.FilterMessage("inference failed").Len(), test.ShouldEqual, 1)

	eng.invokeErr = nil
	_, ok = inv.Infer(&w)
	test.That(t, ok, test.ShouldBeTrue)
	st := inv.Stats()
	test.That(t, st.Runs, test.ShouldEqual, uint64(2))
	test.That(t, st.Failures, test.ShouldEqual, uint64(1))

	test.That(t, inv.Close(), test.ShouldBeNil)
	test.That(t, eng.closed, test.ShouldBeTrue)
	_, ok = inv.Infer(&w)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestInvokerShortOutput(t *testing.T) {
	eng := &stubEngine{params: Params{InputScale: 1, OutputScale: 1}, out: []int8{3}}
	inv := NewInvoker(eng, identityNorm(), nil)
	test.That(t, inv.Init(), test.ShouldBeNil)
	var w Window
	_, ok := inv.Infer(&w)
	test.That(t, ok, test.ShouldBeFalse)
}

func speedWindow(speed float32) *Window {
	var w Window
	for i := range w {
		w[i][ChAccZ] = 1000
		w[i][ChSpeed] = speed
	}
	return &w
}

func TestLinearEngineSeparatesOnSpeed(t *testing.T) {
	eng, err := OpenEngine(EngineConfig{Kind: "linear"})
	test.That(t, err, test.ShouldBeNil)
	inv := NewInvoker(eng, DefaultNormalization(), nil)
	test.That(t, inv.Init(), test.ShouldBeNil)

	r, ok := inv.Infer(speedWindow(6.0))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Class, test.ShouldEqual, EBike)
	test.That(t, float64(r.Probs[0]+r.Probs[1]), test.ShouldAlmostEqual, 1.0, 0.01)

	r, ok = inv.Infer(speedWindow(0.5))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Class, test.ShouldEqual, Walk)
}

func TestLinearEngineRequiresInput(t *testing.T) {
	e := NewLinearEngine(DefaultLinearModel())
	test.That(t, e.SetInput(make([]int8, WindowLen*Channels)), test.ShouldNotBeNil)
	test.That(t, e.Allocate(), test.ShouldBeNil)
	test.That(t, e.Invoke(), test.ShouldNotBeNil)
	test.That(t, e.SetInput(make([]int8, 3)), test.ShouldNotBeNil)
}

func TestLoadLinearModel(t *testing.T) {
	m := DefaultLinearModel()
	m.Bias = []float64{0.25, -0.25}
	b, err := yaml.Marshal(m)
	test.That(t, err, test.ShouldBeNil)
	path := filepath.Join(t.TempDir(), "model.yaml")
	test.That(t, os.WriteFile(path, b, 0o644), test.ShouldBeNil)

	got, err := LoadLinearModel(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Bias, test.ShouldResemble, m.Bias)
	test.That(t, got.OutputZero, test.ShouldEqual, -128)

	eng, err := OpenEngine(EngineConfig{Kind: "linear", ModelPath: path})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, eng.Allocate(), test.ShouldBeNil)
	test.That(t, eng.Params().InputScale, test.ShouldEqual, 1.0/32)

	test.That(t, os.WriteFile(path, []byte("weights: [[1, 2]]\n"), 0o644), test.ShouldBeNil)
	_, err = LoadLinearModel(path)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOpenEngineUnknown(t *testing.T) {
	_, err := OpenEngine(EngineConfig{Kind: "onnx"})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, EngineKinds(), test.ShouldContain, "linear")
}

func TestClassNames(t *testing.T) {
	test.That(t, Walk.String(), test.ShouldEqual, "walk")
	test.That(t, EBike.String(), test.ShouldEqual, "ebike")
	c, err := ParseClass("EBike")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c, test.ShouldEqual, EBike)
	_, err = ParseClass("car")
	test.That(t, err, test.ShouldNotBeNil)
}
