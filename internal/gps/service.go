package gps

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// ByteSource is the receiver driver: a non-blocking read returning whatever
// bytes are available (possibly none).
type ByteSource interface {
	ReadAvailable(p []byte) (int, error)
	Close() error
}

// FixSink receives every merged fix the parser produces.
type FixSink interface {
	SetFix(fix PositionFix)
}

type Options struct {
	// PollInterval is the receiver polling period (default 100ms).
	PollInterval time.Duration
	// MaxLine bounds both the read size and the sentence buffer.
	MaxLine int
	Logger  *zap.SugaredLogger
	Clock   clock.Clock
}

type Stats struct {
	Reads    uint64 `json:"reads"`
	Bytes    uint64 `json:"bytes"`
	Lines    uint64 `json:"lines"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

// Service owns the parser and line splitter and drives them from a periodic
// poll of the receiver. Only the FixSink is shared with other goroutines.
type Service struct {
	src      ByteSource
	sink     FixSink
	parser   *Parser
	splitter *LineSplitter
	readBuf  []byte
	interval time.Duration
	log      *zap.SugaredLogger
	clk      clock.Clock

	reads, bytes, lines, accepted, rejected atomic.Uint64

	closeOnce sync.Once
}

func New(src ByteSource, sink FixSink, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.MaxLine <= 1 {
		opts.MaxLine = DefaultMaxLine
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Service{
		src:      src,
		sink:     sink,
		parser:   NewParser(opts.Logger),
		splitter: NewLineSplitter(opts.MaxLine),
		readBuf:  make([]byte, opts.MaxLine),
		interval: opts.PollInterval,
		log:      opts.Logger,
		clk:      opts.Clock,
	}
}

// Run polls the receiver until ctx is done or the source is exhausted.
func (s *Service) Run(ctx context.Context) error {
	t := s.clk.Ticker(s.interval)
	defer t.Stop()

	s.log.Infow("gps poller started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("gps poller stopped", "stats", s.Stats())
			return nil
		case <-t.C:
			if err := s.Poll(); err != nil {
				if errors.Is(err, io.EOF) {
					s.log.Infow("gps source exhausted", "stats", s.Stats())
					return nil
				}
				// Transient; the receiver keeps its cadence.
				s.log.Warnw("gps read failed", "error", err)
			}
		}
	}
}

// Poll performs one non-blocking read and dispatches every completed line.
func (s *Service) Poll() error {
	n, err := s.src.ReadAvailable(s.readBuf)
	s.reads.Add(1)
	if n > 0 {
		s.bytes.Add(uint64(n))
		s.splitter.Feed(s.readBuf[:n], s.dispatch)
	}
	return err
}

func (s *Service) dispatch(line string) {
	s.lines.Add(1)
	fix, ok := s.parser.HandleSentence(line)
	if !ok {
		s.rejected.Add(1)
		return
	}
	s.accepted.Add(1)
	if s.sink != nil {
		s.sink.SetFix(fix)
	}
	s.log.Debugw("gps updated", "lat", fix.LatDeg, "lon", fix.LonDeg, "speed", fix.SpeedMps, "valid", fix.Valid)
}

func (s *Service) Stats() Stats {
	return Stats{
		Reads:    s.reads.Load(),
		Bytes:    s.bytes.Load(),
		Lines:    s.lines.Load(),
		Accepted: s.accepted.Load(),
		Rejected: s.rejected.Load(),
	}
}

func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.src != nil {
			err = s.src.Close()
		}
	})
	return err
}
