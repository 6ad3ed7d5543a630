package infer

import (
	"strings"

	"github.com/pkg/errors"
)

const (
	// WindowLen is the number of frames per classifier input.
	WindowLen = 75
	// Channels is the per-frame feature count.
	Channels = 8
)

// Channel order matches the classifier's input layout and must not change.
const (
	ChAccX = iota
	ChAccY
	ChAccZ
	ChGyroX
	ChGyroY
	ChGyroZ
	ChSpeed
	ChTurnRate
)

var channelNames = [Channels]string{
	"acc_x", "acc_y", "acc_z", "gyro_x", "gyro_y", "gyro_z", "speed_mps", "turn_rate_deg_s",
}

func ChannelName(ch int) string {
	if ch < 0 || ch >= Channels {
		return "unknown"
	}
	return channelNames[ch]
}

// Frame is one time step of derived features.
type Frame [Channels]float32

// Window is WindowLen frames, oldest first.
type Window [WindowLen]Frame

type Class int

const (
	Walk Class = iota
	EBike

	NumClasses = 2
)

func (c Class) String() string {
	switch c {
	case Walk:
		return "walk"
	case EBike:
		return "ebike"
	default:
		return "unknown"
	}
}

func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walk":
		return Walk, nil
	case "ebike":
		return EBike, nil
	default:
		return 0, errors.Errorf("unknown class %q", s)
	}
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(b []byte) error {
	v, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Result is one classification: the winning class, the dequantized
// per-class confidences and the raw engine outputs they came from.
type Result struct {
	Class Class               `json:"class"`
	Probs [NumClasses]float32 `json:"probs"`
	Raw   [NumClasses]int8    `json:"-"`
}
