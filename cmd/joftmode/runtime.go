package main

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"joftmode/internal/config"
	"joftmode/internal/gps"
	"joftmode/internal/imu"
	"joftmode/internal/infer"
	"joftmode/internal/recorder"
	"joftmode/internal/sim"
	"joftmode/internal/telemetry"
	"joftmode/internal/web"
	"joftmode/internal/window"
)

// pathSink is implemented by sinks that write to a named file.
type pathSink interface {
	recorder.Sink
	Path() string
}

// liveRuntime owns every task of one run and the resources they share. The
// store is the only state crossing task boundaries; the window and invoker
// belong to the consumer goroutine.
type liveRuntime struct {
	cfg config.Config
	log *zap.SugaredLogger
	clk clock.Clock

	store    *telemetry.Store
	sampler  *imu.Sampler
	gpsSvc   *gps.Service
	invoker  *infer.Invoker
	agg      *window.Aggregator
	sink     pathSink
	consumer *recorder.Consumer
	status   *web.Status
	server   *web.Server

	// stopWhenDrained ends the run once a finite IMU source runs dry.
	stopWhenDrained bool
	closers         []io.Closer
}

func newLiveRuntime(cfg config.Config, logger *zap.SugaredLogger, logs *web.LogBuffer, clk clock.Clock) (rt *liveRuntime, err error) {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clk == nil {
		clk = clock.New()
	}
	rt = &liveRuntime{cfg: cfg, log: logger, clk: clk, store: telemetry.New()}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, rt.Close())
			rt = nil
		}
	}()
	rt.status = web.NewStatus(rt.store)

	activity, err := infer.ParseClass(cfg.Sim.Activity)
	if err != nil {
		return nil, err
	}
	ride := sim.Ride{
		CenterLatDeg: cfg.Sim.CenterLatDeg,
		CenterLonDeg: cfg.Sim.CenterLonDeg,
		SpeedMps:     cfg.Sim.SpeedMps,
		Period:       cfg.Sim.Period,
		Activity:     activity,
	}

	var src imu.Source
	switch cfg.IMU.Source {
	case "replay":
		rs, err := recorder.OpenReplaySource(cfg.IMU.ReplayPath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rs)
		rt.stopWhenDrained = true
		src = rs
		rt.status.SetInfo("imu_source", "replay:"+cfg.IMU.ReplayPath)
	default:
		src = sim.NewIMU(ride, clk)
		rt.status.SetInfo("imu_source", "sim:"+activity.String())
	}
	rt.sampler = imu.NewSampler(src, rt.store, imu.SamplerConfig{
		Interval: cfg.IMU.Interval,
		Warmup:   *cfg.IMU.Warmup,
		Logger:   logger.Named("imu"),
		Clock:    clk,
	})

	if cfg.GPS.Enable {
		var bs gps.ByteSource
		if cfg.GPS.Source == gps.SourceSim {
			bs = sim.NewReceiver(ride, clk)
		} else {
			opened, openErr := gps.OpenSource(gps.SourceConfig{
				Kind:       cfg.GPS.Source,
				Device:     cfg.GPS.Device,
				Baud:       cfg.GPS.Baud,
				Path:       cfg.GPS.Path,
				ChunkBytes: cfg.GPS.ChunkBytes,
			})
			if openErr != nil {
				// Logging without a position is a supported mode.
				logger.Warnw("gps unavailable, continuing without fixes", "source", cfg.GPS.Source, "error", openErr)
			} else {
				bs = opened
			}
		}
		if bs != nil {
			rt.gpsSvc = gps.New(bs, rt.store, gps.Options{
				PollInterval: cfg.GPS.PollInterval,
				MaxLine:      cfg.GPS.MaxLine,
				Logger:       logger.Named("gps"),
				Clock:        clk,
			})
			rt.closers = append(rt.closers, rt.gpsSvc)
			rt.status.SetInfo("gps_source", cfg.GPS.Source)
			rt.status.AddCounter("gps", func() any { return rt.gpsSvc.Stats() })
		}
	}

	var clf window.Classifier
	if cfg.ML.Enable {
		if inv := rt.openInvoker(); inv != nil {
			rt.invoker = inv
			clf = inv
			rt.status.AddCounter("inference", func() any { return inv.Stats() })
		}
	}
	rt.agg = window.New(clf)

	sink, err := openSink(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	rt.sink = sink
	rt.status.SetInfo("log_path", rt.sink.Path())
	rt.consumer = recorder.NewConsumer(rt.store, rt.agg, rt.sink, rt.store, recorder.ConsumerConfig{
		Interval:   cfg.Log.Interval,
		FlushEvery: cfg.Log.FlushEvery,
		SyncEvery:  cfg.Log.SyncEvery,
		Logger:     logger.Named("recorder"),
		Clock:      clk,
	})
	rt.status.AddCounter("recorder", func() any { return rt.consumer.Stats() })

	if cfg.Web.Enable {
		rt.server = web.NewServer(rt.status, logs, logger.Named("web"))
	}
	return rt, nil
}

func openSink(cfg config.LogConfig) (pathSink, error) {
	if cfg.Format == "sqlite" {
		s, err := recorder.OpenSQLiteSink(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := recorder.CreateFileSink(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openInvoker returns nil when the engine cannot be brought up; the run then
// logs rows without classification.
func (rt *liveRuntime) openInvoker() *infer.Invoker {
	eng, err := infer.OpenEngine(infer.EngineConfig{
		Kind:      rt.cfg.ML.Engine,
		ModelPath: rt.cfg.ML.ModelPath,
		Threads:   rt.cfg.ML.Threads,
	})
	if err != nil {
		rt.log.Warnw("inference disabled", "engine", rt.cfg.ML.Engine, "error", err)
		return nil
	}
	inv := infer.NewInvoker(eng, rt.cfg.ML.Normalization(), rt.log.Named("infer"))
	if err := inv.Init(); err != nil {
		rt.log.Warnw("inference disabled", "engine", rt.cfg.ML.Engine, "error", err)
		_ = inv.Close()
		return nil
	}
	rt.status.SetInfo("engine", rt.cfg.ML.Engine)
	return inv
}

// Run starts every task and blocks until ctx is done, a finite source is
// drained, or a task fails.
func (rt *liveRuntime) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	rt.log.Infow("joftmode starting",
		"imu", rt.cfg.IMU.Source, "gps", rt.gpsSvc != nil,
		"inference", rt.invoker != nil, "log", rt.sink.Path())

	g.Go(func() error {
		err := rt.sampler.Run(gctx)
		if err == nil && rt.stopWhenDrained && gctx.Err() == nil {
			// Give the consumer two ticks to log the last sample.
			select {
			case <-rt.clk.After(2 * rt.cfg.Log.Interval):
			case <-gctx.Done():
			}
			stop()
		}
		return err
	})
	if rt.gpsSvc != nil {
		g.Go(func() error { return rt.gpsSvc.Run(gctx) })
	}
	g.Go(func() error { return rt.consumer.Run(gctx) })
	if rt.server != nil {
		g.Go(func() error {
			// The status API is optional; losing it never stops the pipeline.
			if err := rt.server.Serve(gctx, rt.cfg.Web.Listen); err != nil {
				rt.log.Warnw("web api unavailable, continuing without it", "listen", rt.cfg.Web.Listen, "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	rt.log.Infow("joftmode stopping", "recorder", rt.consumer.Stats())
	return err
}

// Close flushes and closes the log and releases every source.
func (rt *liveRuntime) Close() error {
	var err error
	if rt.consumer != nil {
		err = multierr.Append(err, rt.consumer.Close())
	} else if rt.sink != nil {
		err = multierr.Append(err, rt.sink.Close())
	}
	if rt.invoker != nil {
		err = multierr.Append(err, rt.invoker.Close())
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i].Close())
	}
	rt.closers = nil
	return err
}
