package window

import (
	"math"

	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

// Classifier runs one forward pass over a full window.
type Classifier interface {
	Infer(w *infer.Window) (infer.Result, bool)
}

// Aggregator keeps the last infer.WindowLen feature frames in a fixed ring
// and classifies every push once the ring is full. It is owned by a single
// task and does no locking.
type Aggregator struct {
	ring    [infer.WindowLen]infer.Frame
	written uint64
	count   int

	clf Classifier

	havePrevFix  bool
	prevCourse   float64
	prevFixUS    int64
	lastSpeedMps float64

	latest     infer.Result
	haveLatest bool
	scratch    infer.Window
}

func New(clf Classifier) *Aggregator {
	return &Aggregator{clf: clf}
}

// Push appends one frame derived from the sample and, when present, the
// fix's speed and course. It returns the classification produced by this
// push, if any.
func (a *Aggregator) Push(s imu.Sample, hasFix bool, speedMps, courseDeg float64) (infer.Result, bool) {
	turnRate := 0.0
	if hasFix {
		a.lastSpeedMps = speedMps
		if a.havePrevFix {
			dt := float64(s.TimestampUS-a.prevFixUS) / 1e6
			if dt > 0 {
				turnRate = WrapDeg(courseDeg-a.prevCourse) / dt
			}
		}
		a.havePrevFix = true
		a.prevCourse = courseDeg
		a.prevFixUS = s.TimestampUS
	} else {
		speedMps = a.lastSpeedMps
	}

	a.ring[a.written%infer.WindowLen] = infer.Frame{
		infer.ChAccX:     float32(s.Ax),
		infer.ChAccY:     float32(s.Ay),
		infer.ChAccZ:     float32(s.Az),
		infer.ChGyroX:    float32(s.Gx),
		infer.ChGyroY:    float32(s.Gy),
		infer.ChGyroZ:    float32(s.Gz),
		infer.ChSpeed:    float32(speedMps),
		infer.ChTurnRate: float32(turnRate),
	}
	a.written++
	if a.count < infer.WindowLen {
		a.count++
	}

	if a.count < infer.WindowLen || a.clf == nil {
		return infer.Result{}, false
	}
	a.Snapshot(&a.scratch)
	r, ok := a.clf.Infer(&a.scratch)
	if ok {
		a.latest = r
		a.haveLatest = true
	}
	return r, ok
}

// Snapshot copies the buffered frames into w oldest first, zero-padding the
// tail when fewer than infer.WindowLen frames have been pushed.
func (a *Aggregator) Snapshot(w *infer.Window) {
	*w = infer.Window{}
	start := a.written - uint64(a.count)
	for i := 0; i < a.count; i++ {
		w[i] = a.ring[(start+uint64(i))%infer.WindowLen]
	}
}

// Latest is the most recent successful classification. A failed pass does
// not clear it.
func (a *Aggregator) Latest() (infer.Result, bool) {
	return a.latest, a.haveLatest
}

func (a *Aggregator) Count() int {
	return a.count
}

// WrapDeg normalizes an angle difference into [-180, 180].
func WrapDeg(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	d = math.Mod(d, 360)
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}
