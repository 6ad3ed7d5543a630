package recorder

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

// Header is the first row of every log file.
const Header = "date,timestamp,timestamp_ms,latitude,longitude,speed_mps,course_deg," +
	"acc_x,acc_y,acc_z,gyro_x,gyro_y,gyro_z," +
	"ml_pred,ml_p_walk,ml_p_ebike"

// LineEnd terminates every row, header included.
const LineEnd = "\r\n"

const numColumns = 16

// Position is the fix part of a record.
type Position struct {
	LatDeg    float64
	LonDeg    float64
	SpeedMps  float64
	CourseDeg float64
}

// LogRecord is one output row. Position and Result are nil when absent and
// are written as empty fields, never zeros.
type LogRecord struct {
	Date        string
	Time        string
	TimestampMS int64
	Position    *Position
	Axes        imu.Axes
	Result      *infer.Result
}

// Line formats the record without the terminator.
func (r LogRecord) Line() string {
	var b strings.Builder
	b.Grow(160)
	b.WriteString(r.Date)
	b.WriteByte(',')
	b.WriteString(r.Time)
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(r.TimestampMS, 10))
	if p := r.Position; p != nil {
		for _, v := range []float64{p.LatDeg, p.LonDeg, p.SpeedMps, p.CourseDeg} {
			b.WriteByte(',')
			b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
		}
	} else {
		b.WriteString(",,,,")
	}
	for _, v := range []int16{r.Axes.Ax, r.Axes.Ay, r.Axes.Az, r.Axes.Gx, r.Axes.Gy, r.Axes.Gz} {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(int(v)))
	}
	if res := r.Result; res != nil {
		b.WriteByte(',')
		b.WriteString(res.Class.String())
		for c := 0; c < infer.NumClasses; c++ {
			b.WriteByte(',')
			b.WriteString(strconv.FormatFloat(float64(res.Probs[c]), 'f', 3, 32))
		}
	} else {
		b.WriteString(",,,")
	}
	return b.String()
}

// ParseRecord decodes one data row (terminator optional).
func ParseRecord(line string) (LogRecord, error) {
	line = strings.TrimRight(line, LineEnd)
	cols := strings.Split(line, ",")
	if len(cols) != numColumns {
		return LogRecord{}, errors.Errorf("record has %d columns, want %d", len(cols), numColumns)
	}
	return recordFromColumns(cols)
}

func recordFromColumns(cols []string) (LogRecord, error) {
	var r LogRecord
	var err error
	r.Date = cols[0]
	r.Time = cols[1]
	if r.TimestampMS, err = strconv.ParseInt(cols[2], 10, 64); err != nil {
		return LogRecord{}, errors.Wrap(err, "timestamp_ms")
	}

	if cols[3] != "" {
		var p Position
		dst := []*float64{&p.LatDeg, &p.LonDeg, &p.SpeedMps, &p.CourseDeg}
		for i, d := range dst {
			if *d, err = strconv.ParseFloat(cols[3+i], 64); err != nil {
				return LogRecord{}, errors.Wrapf(err, "column %d", 3+i)
			}
		}
		r.Position = &p
	}

	axes := []*int16{&r.Axes.Ax, &r.Axes.Ay, &r.Axes.Az, &r.Axes.Gx, &r.Axes.Gy, &r.Axes.Gz}
	for i, d := range axes {
		v, err := strconv.ParseInt(cols[7+i], 10, 16)
		if err != nil {
			return LogRecord{}, errors.Wrapf(err, "column %d", 7+i)
		}
		*d = int16(v)
	}

	if cols[13] != "" {
		class, err := infer.ParseClass(cols[13])
		if err != nil {
			return LogRecord{}, err
		}
		res := infer.Result{Class: class}
		for c := 0; c < infer.NumClasses; c++ {
			v, err := strconv.ParseFloat(cols[14+c], 32)
			if err != nil {
				return LogRecord{}, errors.Wrapf(err, "column %d", 14+c)
			}
			res.Probs[c] = float32(v)
		}
		r.Result = &res
	}
	return r, nil
}
