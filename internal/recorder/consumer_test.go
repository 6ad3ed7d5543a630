package recorder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"

	"joftmode/internal/gps"
	"joftmode/internal/imu"
	"joftmode/internal/infer"
	"joftmode/internal/telemetry"
	"joftmode/internal/window"
)

type memSink struct {
	lines   []string
	flushes int
	syncs   int
	closed  bool

	appendErr error
	flushErr  error
}

func (m *memSink) AppendText(line string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *memSink) Flush() error {
	if m.flushErr != nil {
		return m.flushErr
	}
	m.flushes++
	return nil
}

func (m *memSink) Sync() error {
	m.syncs++
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func sampleAt(i int) imu.Sample {
	return imu.Sample{Axes: imu.Axes{Ax: int16(i), Az: 1000}, TimestampUS: int64(i+1) * 40000}
}

func TestOnTickWithoutSampleDoesNothing(t *testing.T) {
	sink := &memSink{}
	c := NewConsumer(telemetry.New(), window.New(nil), sink, nil, ConsumerConfig{})
	c.OnTick()
	test.That(t, len(sink.lines), test.ShouldEqual, 0)
}

func TestOnTickDeduplicatesTimestamps(t *testing.T) {
	store := telemetry.New()
	sink := &memSink{}
	c := NewConsumer(store, window.New(nil), sink, nil, ConsumerConfig{})

	store.SetSample(sampleAt(0))
	c.OnTick()
	c.OnTick()
	test.That(t, len(sink.lines), test.ShouldEqual, 1)

	store.SetSample(sampleAt(1))
	c.OnTick()
	test.That(t, len(sink.lines), test.ShouldEqual, 2)
	test.That(t, sink.lines[1], test.ShouldEqual, ",,80,,,,,1,0,1000,0,0,0,,,"+LineEnd)
	test.That(t, c.Stats().Records, test.ShouldEqual, uint64(2))
}

func TestFlushAndSyncCadence(t *testing.T) {
	store := telemetry.New()
	sink := &memSink{}
	c := NewConsumer(store, nil, sink, nil, ConsumerConfig{FlushEvery: 25, SyncEvery: 2})
	for i := 0; i < 100; i++ {
		store.SetSample(sampleAt(i))
		c.OnTick()
	}
	test.That(t, len(sink.lines), test.ShouldEqual, 100)
	test.That(t, sink.flushes, test.ShouldEqual, 4)
	test.That(t, sink.syncs, test.ShouldEqual, 2)
	st := c.Stats()
	test.That(t, st.Flushes, test.ShouldEqual, uint64(4))
	test.That(t, st.Syncs, test.ShouldEqual, uint64(2))

	test.That(t, c.Close(), test.ShouldBeNil)
	test.That(t, sink.closed, test.ShouldBeTrue)
}

func TestDefaultSyncEveryFlush(t *testing.T) {
	store := telemetry.New()
	sink := &memSink{}
	c := NewConsumer(store, nil, sink, nil, ConsumerConfig{})
	for i := 0; i < 50; i++ {
		store.SetSample(sampleAt(i))
		c.OnTick()
	}
	test.That(t, sink.flushes, test.ShouldEqual, 2)
	test.That(t, sink.syncs, test.ShouldEqual, 2)
}

func TestPersistenceFailureLoggedOncePerStreak(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	store := telemetry.New()
	sink := &memSink{appendErr: errors.New("card removed")}
	c := NewConsumer(store, nil, sink, nil, ConsumerConfig{Logger: zap.New(core).Sugar()})

	for i := 0; i < 5; i++ {
		store.SetSample(sampleAt(i))
		c.OnTick()
	}
	test.That(t, logs.FilterMessage("log write failed").Len(), test.ShouldEqual, 1)
	test.That(t, c.Stats().Failures, test.ShouldEqual, uint64(5))

	sink.appendErr = nil
	store.SetSample(sampleAt(5))
	c.OnTick()
	test.That(t, len(sink.lines), test.ShouldEqual, 1)
	recovered := logs.FilterMessage("log writes recovered").All()
	test.That(t, len(recovered), test.ShouldEqual, 1)
	test.That(t, recovered[0].ContextMap()["failed_ops"], test.ShouldEqual, int64(5))
}

func TestFixCacheAndValidity(t *testing.T) {
	store := telemetry.New()
	sink := &memSink{}
	c := NewConsumer(store, window.New(nil), sink, nil, ConsumerConfig{})

	good := gps.PositionFix{LatDeg: 10, LonDeg: 20, SpeedMps: 3, CourseDeg: 90, Date: "010124", Time: "120000", Valid: true}
	store.SetFix(good)
	store.SetSample(sampleAt(0))
	c.OnTick()
	test.That(t, sink.lines[0], test.ShouldStartWith, "010124,120000,40,10.000000,20.000000,3.000000,90.000000,")

	// A fresh invalid fix suppresses the position but never replaces the cache.
	store.SetFix(gps.PositionFix{LatDeg: 99, Valid: false})
	store.SetSample(sampleAt(1))
	c.OnTick()
	test.That(t, sink.lines[1], test.ShouldStartWith, ",,80,,,,,")

	store.SetFix(gps.PositionFix{LatDeg: 11, LonDeg: 21, Date: "010124", Time: "120001", Valid: true})
	store.SetSample(sampleAt(2))
	c.OnTick()
	test.That(t, sink.lines[2], test.ShouldStartWith, "010124,120001,120,11.000000,21.000000,")
}

type windowSpy struct {
	pushes []bool
	speeds []float64
}

func (w *windowSpy) Push(s imu.Sample, hasFix bool, speed, course float64) (infer.Result, bool) {
	w.pushes = append(w.pushes, hasFix)
	w.speeds = append(w.speeds, speed)
	return infer.Result{}, false
}

func (w *windowSpy) Latest() (infer.Result, bool) { return infer.Result{}, false }

func TestWindowFedFromFreshOrCachedFix(t *testing.T) {
	store := telemetry.New()
	spy := &windowSpy{}
	c := NewConsumer(store, spy, &memSink{}, nil, ConsumerConfig{})

	store.SetSample(sampleAt(0))
	c.OnTick()
	store.SetFix(gps.PositionFix{SpeedMps: 4, Valid: true})
	store.SetSample(sampleAt(1))
	c.OnTick()
	store.SetFix(gps.PositionFix{SpeedMps: 7, Valid: false})
	store.SetSample(sampleAt(2))
	c.OnTick()

	test.That(t, spy.pushes, test.ShouldResemble, []bool{false, true, false})
	test.That(t, spy.speeds, test.ShouldResemble, []float64{0, 4, 7})
}

func TestRunTicksOnClock(t *testing.T) {
	store := telemetry.New()
	sink := &memSink{}
	mock := clock.NewMock()
	c := NewConsumer(store, nil, sink, nil, ConsumerConfig{Clock: mock})
	store.SetSample(sampleAt(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for c.Stats().Records == 0 {
		select {
		case <-deadline:
			t.Fatal("consumer never ticked")
		default:
			mock.Add(40 * time.Millisecond)
		}
	}
	cancel()
	test.That(t, <-done, test.ShouldBeNil)
	test.That(t, c.Stats().Records, test.ShouldEqual, uint64(1))
}

type constEngine struct {
	out []int8
}

func (e *constEngine) Allocate() error { return nil }

func (e *constEngine) Params() infer.Params {
	return infer.Params{InputScale: 1.0 / 32, OutputScale: 1.0 / 256, OutputZero: -128}
}

func (e *constEngine) SetInput([]int8) error { return nil }

func (e *constEngine) Invoke() error { return nil }

func (e *constEngine) Output() ([]int8, error) { return e.out, nil }

func (e *constEngine) Close() error { return nil }

// RMC sentence, then 75 samples at 25 Hz: the 75th sample yields the first
// classification and every row carries the RMC position.
func TestEndToEndScenario(t *testing.T) {
	store := telemetry.New()
	parser := gps.NewParser(nil)
	fix, ok := parser.HandleSentence("$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")
	test.That(t, ok, test.ShouldBeTrue)
	store.SetFix(fix)

	inv := infer.NewInvoker(&constEngine{out: []int8{-100, 90}}, infer.DefaultNormalization(), nil)
	test.That(t, inv.Init(), test.ShouldBeNil)
	agg := window.New(inv)
	sink := &memSink{}
	c := NewConsumer(store, agg, sink, store, ConsumerConfig{})

	for i := 0; i < infer.WindowLen; i++ {
		store.SetSample(sampleAt(i))
		c.OnTick()
	}

	test.That(t, len(sink.lines), test.ShouldEqual, infer.WindowLen)
	test.That(t, c.Stats().Results, test.ShouldEqual, uint64(1))
	r, ok := store.LatestResult()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, r.Class, test.ShouldEqual, infer.EBike)

	position := fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", fix.LatDeg, fix.LonDeg, fix.SpeedMps, fix.CourseDeg)
	test.That(t, position, test.ShouldStartWith, "48.117300,11.516667,")
	for i, line := range sink.lines {
		rec, err := ParseRecord(line)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, rec.Position, test.ShouldNotBeNil)
		test.That(t, rec.Position.LatDeg, test.ShouldAlmostEqual, 48.1173, 1e-6)
		test.That(t, rec.Position.LonDeg, test.ShouldAlmostEqual, 11.516667, 1e-6)
		test.That(t, strings.Split(line, ",")[3:7], test.ShouldResemble, strings.Split(position, ","))
		test.That(t, rec.Date, test.ShouldEqual, "230394")
		test.That(t, rec.Time, test.ShouldEqual, "123519")
		if i < infer.WindowLen-1 {
			test.That(t, rec.Result, test.ShouldBeNil)
		} else {
			test.That(t, rec.Result, test.ShouldNotBeNil)
			test.That(t, rec.Result.Class, test.ShouldEqual, infer.EBike)
			test.That(t, line, test.ShouldEndWith, ",ebike,0.109,0.852"+LineEnd)
		}
	}

	// Sliding: one more sample, one more result.
	store.SetSample(sampleAt(infer.WindowLen))
	c.OnTick()
	test.That(t, c.Stats().Results, test.ShouldEqual, uint64(2))
	test.That(t, len(sink.lines), test.ShouldEqual, infer.WindowLen+1)
}
