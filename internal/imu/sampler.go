package imu

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Source is the sensor driver. ReadSample may block; io.EOF ends sampling.
type Source interface {
	ReadSample(ctx context.Context) (Axes, error)
}

type SampleSink interface {
	SetSample(s Sample)
}

const heartbeatEvery = 25

type SamplerConfig struct {
	Interval time.Duration
	// Warmup samples are read after start but never published.
	Warmup int
	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

// Sampler is the periodic inertial sampling task.
type Sampler struct {
	src      Source
	sink     SampleSink
	interval time.Duration
	warmup   int
	log      *zap.SugaredLogger
	clk      clock.Clock

	start time.Time
	read  int
	sent  int
}

func NewSampler(src Source, sink SampleSink, cfg SamplerConfig) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = 40 * time.Millisecond
	}
	if cfg.Warmup < 0 {
		cfg.Warmup = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Sampler{
		src:      src,
		sink:     sink,
		interval: cfg.Interval,
		warmup:   cfg.Warmup,
		log:      cfg.Logger,
		clk:      cfg.Clock,
	}
}

func (s *Sampler) Run(ctx context.Context) error {
	s.start = s.clk.Now()
	t := s.clk.Ticker(s.interval)
	defer t.Stop()

	s.log.Infow("imu sampler started", "interval", s.interval, "warmup", s.warmup)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("imu sampler stopped", "published", s.sent)
			return nil
		case <-t.C:
			if err := s.Step(ctx); err != nil {
				if errors.Is(err, io.EOF) {
					s.log.Infow("imu source exhausted", "published", s.sent)
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				s.log.Warnw("imu read failed", "error", err)
			}
		}
	}
}

// Step reads one sample and publishes it once warm-up has passed.
func (s *Sampler) Step(ctx context.Context) error {
	axes, err := s.src.ReadSample(ctx)
	if err != nil {
		return err
	}
	s.read++
	if s.read <= s.warmup {
		return nil
	}
	if s.start.IsZero() {
		s.start = s.clk.Now()
	}
	sample := Sample{Axes: axes, TimestampUS: s.clk.Since(s.start).Microseconds()}
	s.sink.SetSample(sample)
	s.sent++
	if s.sent%heartbeatEvery == 0 {
		s.log.Debugw("imu heartbeat", "n", s.sent, "ts_us", sample.TimestampUS, "axes", axes.String())
	}
	return nil
}

func (s *Sampler) Published() int {
	return s.sent
}
