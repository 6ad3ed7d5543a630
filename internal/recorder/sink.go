package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Sink is an already-open append-only log. Implementations never rewrite
// bytes that were already accepted.
type Sink interface {
	AppendText(line string) error
	// Flush hands buffered rows to the storage layer.
	Flush() error
	// Sync forces flushed rows onto stable storage.
	Sync() error
	Close() error
}

const maxLogIndex = 9999

// NextLogPath returns the first unused log_NNNN.<ext> in dir, or
// log_overflow.<ext> once every index is taken.
func NextLogPath(dir, ext string) string {
	for i := 1; i <= maxLogIndex; i++ {
		p := filepath.Join(dir, fmt.Sprintf("log_%04d.%s", i, ext))
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
	}
	return filepath.Join(dir, "log_overflow."+ext)
}

// FileSink is a buffered CSV log file.
type FileSink struct {
	path   string
	f      *os.File
	w      *bufio.Writer
	closed bool
}

// CreateFileSink creates the next free log file in dir and durably writes
// the header before returning.
func CreateFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create log dir %s", dir)
	}
	path := NextLogPath(dir, "csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	s := &FileSink{path: path, f: f, w: bufio.NewWriterSize(f, 16*1024)}
	if err := s.writeHeader(); err != nil {
		return nil, multierr.Combine(err, f.Close())
	}
	return s, nil
}

func (s *FileSink) writeHeader() error {
	if st, err := s.f.Stat(); err == nil && st.Size() > 0 {
		// Reopened overflow file: keep appending below the existing header.
		return nil
	}
	if _, err := s.w.WriteString(Header + LineEnd); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := s.Flush(); err != nil {
		return err
	}
	return s.Sync()
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) AppendText(line string) error {
	if s.closed {
		return errors.New("log file is closed")
	}
	_, err := s.w.WriteString(line)
	return err
}

func (s *FileSink) Flush() error {
	if s.closed {
		return nil
	}
	return s.w.Flush()
}

func (s *FileSink) Sync() error {
	if s.closed {
		return nil
	}
	return s.f.Sync()
}

func (s *FileSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Combine(s.w.Flush(), s.f.Sync(), s.f.Close())
}
