package imu

import "fmt"

// Axes is one raw 6-axis reading in sensor units: acceleration in mg and
// angular rate in the gyro's fixed full-scale counts.
type Axes struct {
	Ax, Ay, Az int16
	Gx, Gy, Gz int16
}

// Sample is Axes stamped with microseconds since the sampler started. It is
// immutable once produced.
type Sample struct {
	Axes
	TimestampUS int64 `json:"timestamp_us"`
}

// TimestampMS is the log timestamp.
func (s Sample) TimestampMS() int64 {
	return s.TimestampUS / 1000
}

func (a Axes) String() string {
	return fmt.Sprintf("acc=[%d %d %d] gyro=[%d %d %d]", a.Ax, a.Ay, a.Az, a.Gx, a.Gy, a.Gz)
}
