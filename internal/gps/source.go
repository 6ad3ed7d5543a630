package gps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	SourceSerial = "serial"
	SourceFile   = "file"
	SourceSim    = "sim"
)

// SourceConfig selects and parameterizes the receiver driver.
type SourceConfig struct {
	Kind   string
	Device string
	Baud   int
	// Path is an NMEA capture replayed by the file source.
	Path string
	// ChunkBytes caps how much of the capture is handed out per poll, which
	// approximates the UART rate (96 bytes per 100ms poll at 9600 baud).
	ChunkBytes int
}

// OpenSource opens a serial or file source. The sim source lives in package
// sim and is constructed by the caller.
func OpenSource(cfg SourceConfig) (ByteSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case SourceSerial, "":
		dev := strings.TrimSpace(cfg.Device)
		if dev == "" {
			if dev = autoDetectDevice(); dev == "" {
				return nil, errors.New("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			}
		}
		f, err := openSerial(dev, cfg.Baud)
		if err != nil {
			return nil, errors.Wrap(err, "gps serial")
		}
		return &SerialSource{f: f}, nil
	case SourceFile:
		fs, err := OpenFileSource(cfg.Path, cfg.ChunkBytes)
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, errors.Errorf("gps: unsupported source %q", cfg.Kind)
	}
}

// SerialSource wraps a UART opened with VMIN=0.
type SerialSource struct {
	f *os.File
}

func (s *SerialSource) ReadAvailable(p []byte) (int, error) {
	n, err := s.f.Read(p)
	// A zero-byte raw read surfaces as io.EOF; on a tty that only means idle.
	if errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (s *SerialSource) Close() error {
	return s.f.Close()
}

// FileSource replays a captured NMEA stream in bounded chunks. It returns
// io.EOF once the capture is exhausted.
type FileSource struct {
	f     *os.File
	r     *bufio.Reader
	chunk int
}

func OpenFileSource(path string, chunk int) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("gps: file source needs a path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "gps file source")
	}
	return NewReaderSource(f, chunk, f), nil
}

// NewReaderSource adapts any reader; closer may be nil.
func NewReaderSource(r io.Reader, chunk int, closer *os.File) *FileSource {
	if chunk <= 0 {
		chunk = 96
	}
	return &FileSource{f: closer, r: bufio.NewReader(r), chunk: chunk}
}

func (s *FileSource) ReadAvailable(p []byte) (int, error) {
	if len(p) > s.chunk {
		p = p[:s.chunk]
	}
	n, err := s.r.Read(p)
	if n > 0 && errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	return s.f.Close()
}

func autoDetectDevice() string {
	var candidates []string
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
