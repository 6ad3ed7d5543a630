package imu

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
)

type countingSource struct {
	n     int
	limit int
	fail  map[int]bool
}

func (c *countingSource) ReadSample(ctx context.Context) (Axes, error) {
	c.n++
	if c.limit > 0 && c.n > c.limit {
		return Axes{}, io.EOF
	}
	if c.fail[c.n] {
		return Axes{}, errors.New("i/o glitch")
	}
	v := int16(c.n)
	return Axes{Ax: v, Ay: -v, Az: 1000, Gx: v * 2, Gy: 0, Gz: -1}, nil
}

type sampleLog struct {
	samples []Sample
}

func (l *sampleLog) SetSample(s Sample) { l.samples = append(l.samples, s) }

func TestSamplerSkipsWarmup(t *testing.T) {
	mock := clock.NewMock()
	sink := &sampleLog{}
	s := NewSampler(&countingSource{}, sink, SamplerConfig{Warmup: 5, Clock: mock})
	s.start = mock.Now()

	for i := 0; i < 8; i++ {
		mock.Add(40 * time.Millisecond)
		test.That(t, s.Step(context.Background()), test.ShouldBeNil)
	}
	test.That(t, len(sink.samples), test.ShouldEqual, 3)
	test.That(t, sink.samples[0].Ax, test.ShouldEqual, int16(6))
	test.That(t, sink.samples[0].TimestampUS, test.ShouldEqual, int64(240000))
	test.That(t, sink.samples[2].TimestampUS, test.ShouldEqual, int64(320000))
	test.That(t, sink.samples[2].TimestampMS(), test.ShouldEqual, int64(320))
	test.That(t, s.Published(), test.ShouldEqual, 3)
}

func TestSamplerTimestampsMonotonic(t *testing.T) {
	mock := clock.NewMock()
	sink := &sampleLog{}
	s := NewSampler(&countingSource{}, sink, SamplerConfig{Clock: mock})
	for i := 0; i < 50; i++ {
		mock.Add(40 * time.Millisecond)
		test.That(t, s.Step(context.Background()), test.ShouldBeNil)
	}
	for i := 1; i < len(sink.samples); i++ {
		test.That(t, sink.samples[i].TimestampUS, test.ShouldBeGreaterThan, sink.samples[i-1].TimestampUS)
	}
}

func TestSamplerHeartbeat(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := &sampleLog{}
	s := NewSampler(&countingSource{}, sink, SamplerConfig{Clock: clock.NewMock(), Logger: zap.New(core).Sugar()})
	for i := 0; i < 60; i++ {
		test.That(t, s.Step(context.Background()), test.ShouldBeNil)
	}
	test.That(t, logs.FilterMessage("imu heartbeat").Len(), test.ShouldEqual, 2)
}

func TestSamplerRunContinuesAfterReadError(t *testing.T) {
	mock := clock.NewMock()
	sink := &sampleLog{}
	src := &countingSource{limit: 10, fail: map[int]bool{3: true}}
	s := NewSampler(src, sink, SamplerConfig{Clock: mock})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(sink.samples), test.ShouldEqual, 9)
			return
		case <-deadline:
			t.Fatal("sampler did not stop")
		default:
			mock.Add(40 * time.Millisecond)
		}
	}
}
