package sim

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const mpsToKnots = 1 / 0.5144

// Sentence wraps payload with '$', checksum and CRLF.
func Sentence(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", payload, ck)
}

// Burst renders the RMC, GGA and VTG sentences a receiver emits once per
// second for the ride position at elapsed, stamped with utc.
func (r Ride) Burst(elapsed time.Duration, utc time.Time) string {
	lat, lon, trk := r.Position(elapsed)
	latS, latH := ddm(lat, 2, "N", "S")
	lonS, lonH := ddm(lon, 3, "E", "W")
	hms := utc.UTC().Format("150405.00")
	date := utc.UTC().Format("020106")
	kt := r.speed() * mpsToKnots

	var b strings.Builder
	b.WriteString(Sentence(fmt.Sprintf("GNRMC,%s,A,%s,%s,%s,%s,%.3f,%.2f,%s,,,A", hms, latS, latH, lonS, lonH, kt, trk, date)))
	b.WriteString(Sentence(fmt.Sprintf("GNGGA,%s,%s,%s,%s,%s,1,09,0.9,520.0,M,47.0,M,,", hms, latS, latH, lonS, lonH)))
	b.WriteString(Sentence(fmt.Sprintf("GNVTG,%.2f,T,,M,%.3f,N,%.3f,K,A", trk, kt, r.speed()*3.6)))
	return b.String()
}

func ddm(deg float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if deg < 0 {
		hemi = neg
		deg = -deg
	}
	d := math.Floor(deg)
	m := (deg - d) * 60
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(d), m), hemi
}
