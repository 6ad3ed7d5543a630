package sim

import (
	"math"
	"time"

	"joftmode/internal/imu"
	"joftmode/internal/infer"
)

const metersPerDegLat = 111320.0

// Ride is a deterministic wearer trajectory used for bench runs: a
// figure-eight around a center point at roughly constant ground speed, with
// inertial readings shaped like the chosen activity.
type Ride struct {
	CenterLatDeg float64
	CenterLonDeg float64
	SpeedMps     float64
	Period       time.Duration
	Activity     infer.Class
}

func (r Ride) period() time.Duration {
	if r.Period <= 0 {
		return 120 * time.Second
	}
	return r.Period
}

func (r Ride) speed() float64 {
	if r.SpeedMps > 0 {
		return r.SpeedMps
	}
	if r.Activity == infer.EBike {
		return 6.5
	}
	return 1.4
}

// radiusM sizes the loop so one period covers about speed*period meters.
func (r Ride) radiusM() float64 {
	return r.speed() * r.period().Seconds() / (2 * math.Pi * 1.2)
}

// Position returns the location and track elapsed into the ride.
func (r Ride) Position(elapsed time.Duration) (latDeg, lonDeg, trackDeg float64) {
	period := r.period()
	phase := float64(elapsed.Nanoseconds()%period.Nanoseconds()) / float64(period.Nanoseconds())

	// x = cos(2πt), y = 0.5*sin(4πt) keeps the path within the radius.
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	radiusDeg := r.radiusM() / metersPerDegLat
	latDeg = r.CenterLatDeg + radiusDeg*y
	lonDeg = r.CenterLonDeg + (radiusDeg*x)/math.Cos(r.CenterLatDeg*math.Pi/180.0)

	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	trackDeg = math.Mod(math.Atan2(vx, vy)*180/math.Pi+360, 360)
	return latDeg, lonDeg, trackDeg
}

// Axes synthesizes one raw inertial reading (mg and gyro counts).
func (r Ride) Axes(elapsed time.Duration) imu.Axes {
	t := elapsed.Seconds()
	if r.Activity == infer.EBike {
		// Road buzz on top of gravity, slow lean through the turns.
		buzz := 120 * math.Sin(2*math.Pi*17*t)
		lean := 400 * math.Sin(2*math.Pi*t/r.period().Seconds())
		return imu.Axes{
			Ax: clamp16(1600 + buzz),
			Ay: clamp16(2000 + lean),
			Az: clamp16(800 + 1.5*buzz),
			Gx: clamp16(-700 + 80*math.Sin(2*math.Pi*3*t)),
			Gy: clamp16(300 + 60*math.Cos(2*math.Pi*3*t)),
			Gz: clamp16(50 + 4*lean),
		}
	}
	// Walking cadence is about two steps per second.
	step := math.Sin(2 * math.Pi * 2 * t)
	return imu.Axes{
		Ax: clamp16(1600 + 900*step),
		Ay: clamp16(2000 + 1500*math.Sin(2*math.Pi*t)),
		Az: clamp16(800 + 6000*step),
		Gx: clamp16(-700 + 1500*math.Cos(2*math.Pi*2*t)),
		Gy: clamp16(300 + 1200*step),
		Gz: clamp16(40 + 1800*math.Sin(2*math.Pi*t)),
	}
}

func clamp16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
