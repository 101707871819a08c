package stream

// lineScanner assembles logical lines from arbitrarily fragmented input.
//
// It replays the same quote state machine as SplitFields over the raw
// buffer, so a newline inside a quoted field never terminates a line no
// matter how the input was fragmented. pos is the resume cursor: bytes
// before it have already been classified, which keeps scanning linear
// across fragment calls instead of restarting from the buffer head.
type lineScanner struct {
	buf      []byte
	pos      int
	inQuotes bool
}

// push appends a fragment to the pending buffer. The fragment is copied;
// callers may reuse their slice immediately.
func (s *lineScanner) push(fragment []byte) {
	s.buf = append(s.buf, fragment...)
}

// next scans forward for an unquoted line terminator and, if one is found,
// removes and returns the completed line (without the terminator, and
// without one trailing carriage return). final reports that no more input
// will arrive, which resolves the one genuinely ambiguous byte: a quote at
// the very end of the buffer, which mid-stream could still turn out to be
// the first half of a doubled-quote escape.
func (s *lineScanner) next(final bool) (string, bool) {
	for s.pos < len(s.buf) {
		b := s.buf[s.pos]

		if s.inQuotes {
			if b != '"' {
				s.pos++
				continue
			}
			if s.pos+1 >= len(s.buf) && !final {
				// Cannot tell a closing quote from an escape yet.
				return "", false
			}
			if s.pos+1 < len(s.buf) && s.buf[s.pos+1] == '"' {
				s.pos += 2
				continue
			}
			s.inQuotes = false
			s.pos++
			continue
		}

		switch b {
		case '"':
			s.inQuotes = true
			s.pos++
		case '\n':
			line := s.buf[:s.pos]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			out := string(line)
			s.buf = s.buf[s.pos+1:]
			s.pos = 0
			return out, true
		default:
			s.pos++
		}
	}
	return "", false
}

// flush returns any remaining buffered text as the final, unterminated
// logical line. It reports false when the buffer is empty.
func (s *lineScanner) flush() (string, bool) {
	if len(s.buf) == 0 {
		return "", false
	}
	line := s.buf
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	out := string(line)
	s.buf = nil
	s.pos = 0
	return out, true
}

// pending returns the number of buffered bytes not yet resolved into a line.
func (s *lineScanner) pending() int {
	return len(s.buf)
}
