package recorder

import (
	"io"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"joftmode/internal/infer"
)

// Summary describes one log file.
type Summary struct {
	Rows         int            `yaml:"rows" json:"rows"`
	WithPosition int            `yaml:"with_position" json:"with_position"`
	WithResult   int            `yaml:"with_result" json:"with_result"`
	PerClass     map[string]int `yaml:"per_class" json:"per_class"`
	FirstMS      int64          `yaml:"first_ms" json:"first_ms"`
	LastMS       int64          `yaml:"last_ms" json:"last_ms"`
	SpanMS       int64          `yaml:"span_ms" json:"span_ms"`
	Bounds       *Bounds        `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

type Bounds struct {
	MinLat float64 `yaml:"min_lat" json:"min_lat"`
	MaxLat float64 `yaml:"max_lat" json:"max_lat"`
	MinLon float64 `yaml:"min_lon" json:"min_lon"`
	MaxLon float64 `yaml:"max_lon" json:"max_lon"`
}

func Summarize(r io.Reader) (Summary, error) {
	s := Summary{PerClass: map[string]int{}}
	rr := NewReader(r)
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Summary{}, err
		}
		if s.Rows == 0 {
			s.FirstMS = rec.TimestampMS
		}
		s.Rows++
		s.LastMS = rec.TimestampMS
		if p := rec.Position; p != nil {
			s.WithPosition++
			if s.Bounds == nil {
				s.Bounds = &Bounds{MinLat: p.LatDeg, MaxLat: p.LatDeg, MinLon: p.LonDeg, MaxLon: p.LonDeg}
			}
			b := s.Bounds
			b.MinLat, b.MaxLat = math.Min(b.MinLat, p.LatDeg), math.Max(b.MaxLat, p.LatDeg)
			b.MinLon, b.MaxLon = math.Min(b.MinLon, p.LonDeg), math.Max(b.MaxLon, p.LonDeg)
		}
		if res := rec.Result; res != nil {
			s.WithResult++
			s.PerClass[res.Class.String()]++
		}
	}
	s.SpanMS = s.LastMS - s.FirstMS
	return s, nil
}

// ChannelStats computes per-channel mean and standard deviation over the
// six inertial axes and speed. Speed only counts rows that carry a position;
// turn rate is left at mean 0, std 1 since it is derived, not logged. The
// result has the shape of the normalization table.
func ChannelStats(r io.Reader) (infer.Normalization, int, error) {
	var cols [infer.Channels][]float64
	rr := NewReader(r)
	rows := 0
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return infer.Normalization{}, 0, err
		}
		rows++
		a := rec.Axes
		for ch, v := range []int16{a.Ax, a.Ay, a.Az, a.Gx, a.Gy, a.Gz} {
			cols[ch] = append(cols[ch], float64(v))
		}
		if rec.Position != nil {
			cols[infer.ChSpeed] = append(cols[infer.ChSpeed], rec.Position.SpeedMps)
		}
	}
	if rows == 0 {
		return infer.Normalization{}, 0, errors.New("log has no rows")
	}
	var n infer.Normalization
	for ch := 0; ch < infer.Channels; ch++ {
		n.Mean[ch], n.Std[ch] = 0, 1
		if len(cols[ch]) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(cols[ch], nil)
		n.Mean[ch] = mean
		if std > 0 {
			n.Std[ch] = std
		}
	}
	return n, rows, nil
}
