package gps

// AntennaStatus is the receiver-reported antenna health.
type AntennaStatus int

const (
	AntennaUnknown AntennaStatus = iota
	AntennaOK
	AntennaShort
	AntennaOpen
)

func (a AntennaStatus) String() string {
	switch a {
	case AntennaOK:
		return "ok"
	case AntennaShort:
		return "short"
	case AntennaOpen:
		return "open"
	default:
		return "unknown"
	}
}

// FixMode is the positioning mode indicator carried by RMC.
type FixMode int

const (
	ModeUnknown FixMode = iota
	ModeAutonomous
	ModeDifferential
	ModeInvalid
	ModeDeadReckoning
)

func (m FixMode) String() string {
	switch m {
	case ModeAutonomous:
		return "autonomous"
	case ModeDifferential:
		return "differential"
	case ModeInvalid:
		return "invalid"
	case ModeDeadReckoning:
		return "dead_reckoning"
	default:
		return "unknown"
	}
}

// Constellation identifies the talker of the most recent sentence.
type Constellation int

const (
	ConstellationUnknown Constellation = iota
	ConstellationGPS
	ConstellationGLONASS
	ConstellationBeiDou
	ConstellationGalileo
	ConstellationCombined
)

func (c Constellation) String() string {
	switch c {
	case ConstellationGPS:
		return "gps"
	case ConstellationGLONASS:
		return "glonass"
	case ConstellationBeiDou:
		return "beidou"
	case ConstellationGalileo:
		return "galileo"
	case ConstellationCombined:
		return "combined"
	default:
		return "unknown"
	}
}

func constellationFromTalker(talker string) Constellation {
	switch talker {
	case "GP":
		return ConstellationGPS
	case "GL":
		return ConstellationGLONASS
	case "BD", "GB":
		return ConstellationBeiDou
	case "GA":
		return ConstellationGalileo
	case "GN":
		return ConstellationCombined
	default:
		return ConstellationUnknown
	}
}

// PositionFix is the accumulated receiver state. Sentences update disjoint
// subsets of fields; HandleSentence returns a copy of the merged result.
type PositionFix struct {
	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`

	AltitudeM        float64 `json:"altitude_m"`
	GeoidSeparationM float64 `json:"geoid_separation_m"`

	SpeedMps  float64 `json:"speed_mps"`
	CourseDeg float64 `json:"course_deg"`

	SatellitesInUse  int     `json:"satellites_in_use"`
	SatellitesInView int     `json:"satellites_in_view"`
	HDOP             float64 `json:"hdop"`

	// Time is hhmmss[.sss] and Date is ddmmyy, both UTC and as transmitted.
	Time string `json:"time"`
	Date string `json:"date"`

	Antenna       AntennaStatus `json:"antenna"`
	Mode          FixMode       `json:"mode"`
	Valid         bool          `json:"valid"`
	Constellation Constellation `json:"constellation"`
}

// initialFix is the state before any sentence has been decoded.
func initialFix() PositionFix {
	return PositionFix{HDOP: 99.9}
}
