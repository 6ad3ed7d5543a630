package sim

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"joftmode/internal/imu"
)

// Receiver is a gps.ByteSource emitting one NMEA burst per second of ride
// time, handed out in reads of at most len(p) bytes.
type Receiver struct {
	ride    Ride
	clk     clock.Clock
	start   time.Time
	next    time.Duration
	pending []byte
}

func NewReceiver(ride Ride, clk clock.Clock) *Receiver {
	if clk == nil {
		clk = clock.New()
	}
	return &Receiver{ride: ride, clk: clk, start: clk.Now()}
}

func (r *Receiver) ReadAvailable(p []byte) (int, error) {
	elapsed := r.clk.Since(r.start)
	for elapsed >= r.next {
		r.pending = append(r.pending, r.ride.Burst(r.next, r.start.Add(r.next))...)
		r.next += time.Second
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Receiver) Close() error {
	return nil
}

// IMU is an imu.Source synthesizing the ride's inertial readings.
type IMU struct {
	ride  Ride
	clk   clock.Clock
	start time.Time
}

func NewIMU(ride Ride, clk clock.Clock) *IMU {
	if clk == nil {
		clk = clock.New()
	}
	return &IMU{ride: ride, clk: clk, start: clk.Now()}
}

func (s *IMU) ReadSample(ctx context.Context) (imu.Axes, error) {
	if err := ctx.Err(); err != nil {
		return imu.Axes{}, err
	}
	return s.ride.Axes(s.clk.Since(s.start)), nil
}
