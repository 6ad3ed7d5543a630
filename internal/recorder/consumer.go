package recorder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"joftmode/internal/gps"
	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

// Telemetry is the read side of the shared store.
type Telemetry interface {
	LatestSample() (imu.Sample, bool)
	LatestFix() (gps.PositionFix, bool)
}

// Windower is the window aggregator the consumer feeds.
type Windower interface {
	Push(s imu.Sample, hasFix bool, speedMps, courseDeg float64) (infer.Result, bool)
	Latest() (infer.Result, bool)
}

type ResultSink interface {
	SetResult(r infer.Result)
}

type ConsumerConfig struct {
	// Interval is the tick period (default 40ms).
	Interval time.Duration
	// FlushEvery is the number of rows between flushes (default 25).
	FlushEvery int
	// SyncEvery is the number of flushes between syncs (default 1).
	SyncEvery int
	Logger    *zap.SugaredLogger
	Clock     clock.Clock
}

type Stats struct {
	Records  uint64 `json:"records"`
	Flushes  uint64 `json:"flushes"`
	Syncs    uint64 `json:"syncs"`
	Failures uint64 `json:"failures"`
	Results  uint64 `json:"results"`
}

// Consumer is the log tick: it de-duplicates samples, keeps the last good
// fix, feeds the window and appends one row per new sample.
type Consumer struct {
	src     Telemetry
	win     Windower
	sink    Sink
	results ResultSink

	interval   time.Duration
	flushEvery int
	syncEvery  int
	log        *zap.SugaredLogger
	clk        clock.Clock

	lastTS   int64
	haveLast bool

	cache     gps.PositionFix
	haveCache bool

	sinceFlush int
	sinceSync  int
	failStreak int

	records, flushes, syncs, failures, resultsN atomic.Uint64
}

func NewConsumer(src Telemetry, win Windower, sink Sink, results ResultSink, cfg ConsumerConfig) *Consumer {
	if cfg.Interval <= 0 {
		cfg.Interval = 40 * time.Millisecond
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = 25
	}
	if cfg.SyncEvery <= 0 {
		cfg.SyncEvery = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Consumer{
		src:        src,
		win:        win,
		sink:       sink,
		results:    results,
		interval:   cfg.Interval,
		flushEvery: cfg.FlushEvery,
		syncEvery:  cfg.SyncEvery,
		log:        cfg.Logger,
		clk:        cfg.Clock,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	t := c.clk.Ticker(c.interval)
	defer t.Stop()

	c.log.Infow("log consumer started", "interval", c.interval, "flush_every", c.flushEvery, "sync_every", c.syncEvery)
	for {
		select {
		case <-ctx.Done():
			c.log.Infow("log consumer stopped", "stats", c.Stats())
			return nil
		case <-t.C:
			c.OnTick()
		}
	}
}

// OnTick processes the latest sample once. Read sample, read fix, push the
// window, write the row: always in that order.
func (c *Consumer) OnTick() {
	sample, ok := c.src.LatestSample()
	if !ok {
		return
	}
	if c.haveLast && sample.TimestampUS == c.lastTS {
		return
	}
	c.lastTS, c.haveLast = sample.TimestampUS, true

	fix, haveFix := c.src.LatestFix()
	if haveFix && fix.Valid {
		c.cache, c.haveCache = fix, true
	}

	speed, course := c.cache.SpeedMps, c.cache.CourseDeg
	if haveFix {
		speed, course = fix.SpeedMps, fix.CourseDeg
	}
	useFix := c.haveCache
	if haveFix {
		useFix = fix.Valid
	}

	if c.win != nil {
		if r, ok := c.win.Push(sample, useFix, speed, course); ok {
			c.resultsN.Add(1)
			if c.results != nil {
				c.results.SetResult(r)
			}
		}
	}

	rec := LogRecord{TimestampMS: sample.TimestampMS(), Axes: sample.Axes}
	if useFix && c.haveCache {
		rec.Date, rec.Time = c.cache.Date, c.cache.Time
		rec.Position = &Position{
			LatDeg:    c.cache.LatDeg,
			LonDeg:    c.cache.LonDeg,
			SpeedMps:  c.cache.SpeedMps,
			CourseDeg: c.cache.CourseDeg,
		}
	}
	if c.win != nil {
		if r, ok := c.win.Latest(); ok {
			rec.Result = &r
		}
	}
	c.write(rec)
}

func (c *Consumer) write(rec LogRecord) {
	if err := c.sink.AppendText(rec.Line() + LineEnd); err != nil {
		c.failed("append", err)
		return
	}
	c.records.Add(1)
	c.recovered()

	c.sinceFlush++
	if c.sinceFlush < c.flushEvery {
		return
	}
	c.sinceFlush = 0
	if err := c.sink.Flush(); err != nil {
		c.failed("flush", err)
		return
	}
	c.flushes.Add(1)

	c.sinceSync++
	if c.sinceSync < c.syncEvery {
		return
	}
	c.sinceSync = 0
	if err := c.sink.Sync(); err != nil {
		c.failed("sync", err)
		return
	}
	c.syncs.Add(1)
}

// failed logs only the first failure of a streak; sensor data keeps flowing
// regardless of storage health.
func (c *Consumer) failed(op string, err error) {
	c.failures.Add(1)
	c.failStreak++
	if c.failStreak == 1 {
		c.log.Errorw("log write failed", "op", op, "error", err)
	}
}

func (c *Consumer) recovered() {
	if c.failStreak == 0 {
		return
	}
	c.log.Infow("log writes recovered", "failed_ops", c.failStreak)
	c.failStreak = 0
}

func (c *Consumer) Stats() Stats {
	return Stats{
		Records:  c.records.Load(),
		Flushes:  c.flushes.Load(),
		Syncs:    c.syncs.Load(),
		Failures: c.failures.Load(),
		Results:  c.resultsN.Load(),
	}
}

// Close flushes, syncs and closes the sink.
func (c *Consumer) Close() error {
	return multierr.Combine(c.sink.Flush(), c.sink.Sync(), c.sink.Close())
}
