package recorder

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"joftmode/internal/imu"
)

// Reader streams records from a CSV log.
type Reader struct {
	r          *csv.Reader
	line       int
	haveHeader bool
}

func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numColumns
	cr.ReuseRecord = true
	return &Reader{r: cr}
}

// Next returns the next record or io.EOF.
func (rr *Reader) Next() (LogRecord, error) {
	if !rr.haveHeader {
		cols, err := rr.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return LogRecord{}, errors.New("empty log: missing header")
			}
			return LogRecord{}, errors.Wrap(err, "read header")
		}
		rr.line++
		if strings.Join(cols, ",") != Header {
			return LogRecord{}, errors.Errorf("unexpected header %q", strings.Join(cols, ","))
		}
		rr.haveHeader = true
	}
	cols, err := rr.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return LogRecord{}, io.EOF
		}
		return LogRecord{}, errors.Wrapf(err, "line %d", rr.line+1)
	}
	rr.line++
	rec, err := recordFromColumns(cols)
	if err != nil {
		return LogRecord{}, errors.Wrapf(err, "line %d", rr.line)
	}
	return rec, nil
}

func (rr *Reader) ReadAll() ([]LogRecord, error) {
	var out []LogRecord
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// ReplaySource feeds the inertial axes of a previous log back through the
// pipeline, one row per read.
type ReplaySource struct {
	f *os.File
	r *Reader
}

func OpenReplaySource(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay log")
	}
	return &ReplaySource{f: f, r: NewReader(f)}, nil
}

func (s *ReplaySource) ReadSample(ctx context.Context) (imu.Axes, error) {
	if err := ctx.Err(); err != nil {
		return imu.Axes{}, err
	}
	rec, err := s.r.Next()
	if err != nil {
		return imu.Axes{}, err
	}
	return rec.Axes, nil
}

func (s *ReplaySource) Close() error {
	return s.f.Close()
}
