package gps

// NMEA 0183 sentence decoding for the wearable's GNSS receiver.
//
// Only the sentences the logger consumes are modeled:
// - GGA: time, position, satellites in use, HDOP, altitude, geoid separation
// - RMC: validity, position, speed, course, date, mode
// - VTG: course and speed, only while a fix is already valid
// - GSA: satellites in use (max across talkers), HDOP
// - GSV: satellites in view (max), GPS/BeiDou/combined talkers only
// - ZDA: time and packed ddmmyy date
// - TXT: "ANTENNA OPEN|SHORT|OK" diagnostics

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	knotsToMps = 0.5144
	kmhToMps   = 1 / 3.6

	minSentenceLen = 7
)

type nmeaSentence struct {
	Talker string
	Type   string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields fields
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if len(line) < minSentenceLen {
		return nmeaSentence{}, fmt.Errorf("nmea: short sentence")
	}
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) != 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum field %q", ck)
	}
	want, err := hex.DecodeString(ck)
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum field %q", ck)
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, &checksumError{got: got, want: want[0]}
	}

	parts := strings.Split(payload, ",")
	typeField := strings.ToUpper(parts[0])
	if len(typeField) < 3 || len(typeField) > 6 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad type field %q", parts[0])
	}
	// Accept GNxxx/GPxxx, etc; normalize to last 3 chars.
	talker := ""
	t := typeField
	if len(t) > 3 {
		talker = t[:len(t)-3]
		t = t[len(t)-3:]
	}
	return nmeaSentence{Talker: talker, Type: t, Fields: fields(parts)}, nil
}

type checksumError struct {
	got, want byte
}

func (e *checksumError) Error() string {
	return fmt.Sprintf("nmea: checksum mismatch got=%02X want=%02X", e.got, e.want)
}

// Parser accumulates a PositionFix across sentences. It is owned by a single
// goroutine and does no locking.
type Parser struct {
	log *zap.SugaredLogger
	fix PositionFix
}

func NewParser(logger *zap.SugaredLogger) *Parser {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Parser{log: logger, fix: initialFix()}
}

// Fix returns the accumulated state without decoding anything.
func (p *Parser) Fix() PositionFix {
	return p.fix
}

// HandleSentence decodes one line (terminators already stripped). It returns
// the merged fix and true when the line was a checksum-correct sentence of a
// supported type; otherwise it returns false and leaves the state untouched.
func (p *Parser) HandleSentence(line string) (PositionFix, bool) {
	sent, err := parseNMEASentence(line)
	if err != nil {
		if _, ok := err.(*checksumError); ok {
			// Noisy UART lines are expected; keep going.
			p.log.Warnw("nmea checksum failed", "sentence", line, "error", err)
		}
		return PositionFix{}, false
	}

	next := p.fix
	switch sent.Type {
	case "GGA":
		next.applyGGA(sent.Fields)
	case "RMC":
		next.applyRMC(sent.Fields)
	case "VTG":
		next.applyVTG(sent.Fields)
	case "GSA":
		next.applyGSA(sent.Fields)
	case "GSV":
		next.applyGSV(sent.Talker, sent.Fields)
	case "ZDA":
		next.applyZDA(sent.Fields)
	case "TXT":
		next.applyTXT(line)
	default:
		return PositionFix{}, false
	}
	next.Constellation = constellationFromTalker(sent.Talker)
	p.fix = next
	return next, true
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: latitude, 3: N/S
//	4: longitude, 5: E/W
//	6: fix quality
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters), 10: M
//
// 11: geoid separation (meters), 12: M
func (f *PositionFix) applyGGA(fl fields) {
	if v, ok := fl.str(1); ok {
		f.Time = v
	}
	if lat, ok := parseNMEALatLon(fl.at(2), fl.at(3)); ok {
		f.LatDeg = lat
	}
	if lon, ok := parseNMEALatLon(fl.at(4), fl.at(5)); ok {
		f.LonDeg = lon
	}
	if n, ok := fl.int(7); ok {
		f.SatellitesInUse = n
	}
	if v, ok := fl.float(8); ok {
		f.HDOP = v
	}
	if v, ok := fl.float(9); ok {
		f.AltitudeM = v
	}
	if v, ok := fl.float(11); ok {
		f.GeoidSeparationM = v
	}
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm), 4: N/S
//	5: longitude (dddmm.mmmm), 6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
//
// 10: magnetic variation, 11: E/W
// 12: mode (A=autonomous, D=differential, E=dead reckoning, N/V=invalid)
func (f *PositionFix) applyRMC(fl fields) {
	if v, ok := fl.str(1); ok {
		f.Time = v
	}
	if v, ok := fl.str(2); ok {
		f.Valid = v == "A"
	}
	if lat, ok := parseNMEALatLon(fl.at(3), fl.at(4)); ok {
		f.LatDeg = lat
	}
	if lon, ok := parseNMEALatLon(fl.at(5), fl.at(6)); ok {
		f.LonDeg = lon
	}
	if f.Valid {
		if kt, ok := fl.float(7); ok {
			f.SpeedMps = kt * knotsToMps
		}
		if crs, ok := fl.float(8); ok {
			f.CourseDeg = crs
		}
	}
	if v, ok := fl.str(9); ok {
		f.Date = v
	}
	// Mode belongs to this sentence only; NMEA 2.2 receivers omit it.
	f.Mode = ModeUnknown
	if v, ok := fl.str(12); ok {
		f.Mode = parseFixMode(v[0])
	}
	if f.Mode == ModeInvalid {
		f.Valid = false
	}
}

// VTG: Course Over Ground and Ground Speed
// Fields:
//
//	0: talker+type
//	1: course (true), 2: T
//	3: course (magnetic), 4: M
//	5: speed (knots), 6: N
//	7: speed (km/h), 8: K
//
// VTG never establishes validity; it is ignored until RMC has reported one.
func (f *PositionFix) applyVTG(fl fields) {
	if !f.Valid {
		return
	}
	if crs, ok := fl.float(1); ok {
		f.CourseDeg = crs
	}
	if kmh, ok := fl.float(7); ok {
		f.SpeedMps = kmh * kmhToMps
	} else if kt, ok := fl.float(5); ok {
		f.SpeedMps = kt * knotsToMps
	}
}

// GSA: DOP and Active Satellites
// Fields:
//
//	0: talker+type
//	1: selection mode, 2: fix type
//	3..14: satellite ids used in the solution
//	15: PDOP, 16: HDOP, 17: VDOP
func (f *PositionFix) applyGSA(fl fields) {
	used := 0
	for i := 3; i <= 14; i++ {
		if id, ok := fl.int(i); ok && id > 0 {
			used++
		}
	}
	if used > f.SatellitesInUse {
		f.SatellitesInUse = used
	}
	if v, ok := fl.float(16); ok {
		f.HDOP = v
	}
}

// GSV: Satellites in View
// Fields:
//
//	0: talker+type
//	1: number of messages, 2: message number
//	3: satellites in view
//
// GLONASS and Galileo talkers are skipped; combined receivers also report
// them through GN/GP and they would be counted twice.
func (f *PositionFix) applyGSV(talker string, fl fields) {
	switch talker {
	case "GP", "BD", "GB", "GN":
	default:
		return
	}
	if n, ok := fl.int(3); ok && n > f.SatellitesInView {
		f.SatellitesInView = n
	}
}

// ZDA: Time and Date
// Fields:
//
//	0: talker+type
//	1: time, 2: day (dd), 3: month (mm), 4: year (yyyy)
func (f *PositionFix) applyZDA(fl fields) {
	if v, ok := fl.str(1); ok {
		f.Time = v
	}
	day, dOK := fl.str(2)
	month, mOK := fl.str(3)
	year, yOK := fl.str(4)
	if dOK && mOK && yOK && len(day) == 2 && len(month) == 2 && len(year) == 4 {
		f.Date = day + month + year[2:]
	}
}

// applyTXT handles u-blox style antenna supervisor reports, e.g.
// "$GPTXT,01,01,02,ANTSTATUS=OK" variants that embed "ANTENNA OPEN".
func (f *PositionFix) applyTXT(line string) {
	i := strings.Index(line, "ANTENNA ")
	if i < 0 {
		return
	}
	rest := line[i+len("ANTENNA "):]
	switch {
	case strings.HasPrefix(rest, "OPEN"):
		f.Antenna = AntennaOpen
		f.Valid = false
	case strings.HasPrefix(rest, "SHORT"):
		f.Antenna = AntennaShort
		f.Valid = false
	case strings.HasPrefix(rest, "OK"):
		f.Antenna = AntennaOK
	}
}

func parseFixMode(c byte) FixMode {
	switch c {
	case 'A':
		return ModeAutonomous
	case 'D':
		return ModeDifferential
	case 'E':
		return ModeDeadReckoning
	case 'N', 'V':
		return ModeInvalid
	default:
		return ModeUnknown
	}
}

// fields indexes sentence tokens positionally. Empty tokens read as absent so
// callers keep the previous value.
type fields []string

func (fl fields) at(i int) string {
	if i < 0 || i >= len(fl) {
		return ""
	}
	return strings.TrimSpace(fl[i])
}

func (fl fields) str(i int) (string, bool) {
	v := fl.at(i)
	return v, v != ""
}

func (fl fields) float(i int) (float64, bool) {
	return parseFloat(fl.at(i))
}

func (fl fields) int(i int) (int, bool) {
	v := fl.at(i)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon parses NMEA lat/lon in ddmm.mmmm or dddmm.mmmm plus hemisphere.
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	hemi = strings.ToUpper(strings.TrimSpace(hemi))
	if hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W" {
		return 0, false
	}
	ddm, ok := parseFloat(v)
	if !ok {
		return 0, false
	}
	return ddmToDegrees(ddm, hemi[0]), true
}

func ddmToDegrees(ddm float64, hemi byte) float64 {
	abs := math.Abs(ddm)
	deg := math.Floor(abs / 100)
	dec := deg + (abs-deg*100)/60
	if hemi == 'S' || hemi == 'W' {
		dec = -dec
	}
	return dec
}
