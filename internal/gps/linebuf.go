package gps

// DefaultMaxLine matches the receiver UART buffer size.
const DefaultMaxLine = 1024

// LineSplitter assembles '$'-prefixed sentences from a raw byte stream.
//
// A '$' always starts a new line, so a sentence that was cut off mid-burst is
// dropped rather than glued to the next one. Bytes before the first '$' are
// ignored. A line that would reach maxLine bytes is discarded.
type LineSplitter struct {
	buf     []byte
	maxLine int
}

func NewLineSplitter(maxLine int) *LineSplitter {
	if maxLine <= 1 {
		maxLine = DefaultMaxLine
	}
	return &LineSplitter{buf: make([]byte, 0, maxLine), maxLine: maxLine}
}

// Feed consumes data and calls emit once per completed line (without CR/LF).
func (s *LineSplitter) Feed(data []byte, emit func(line string)) {
	for _, c := range data {
		if c == '$' {
			s.buf = s.buf[:0]
		}
		if c == '\r' || c == '\n' {
			if len(s.buf) > 0 {
				line := string(s.buf)
				s.buf = s.buf[:0]
				emit(line)
			}
			continue
		}
		if len(s.buf) == 0 && c != '$' {
			continue
		}
		if len(s.buf) < s.maxLine-1 {
			s.buf = append(s.buf, c)
		} else {
			s.buf = s.buf[:0]
		}
	}
}

// Pending reports how many bytes of an unterminated line are buffered.
func (s *LineSplitter) Pending() int {
	return len(s.buf)
}
