package source

import (
	"io"
	"unicode/utf8"
)

// SanitizingReader replaces invalid UTF-8 bytes with '?' on the fly, so the
// parser downstream only ever sees valid UTF-8. Memory stays constant: a
// multi-byte sequence split across reads is carried in pending until its
// remaining bytes arrive.
type SanitizingReader struct {
	r       io.Reader
	pending []byte
}

// NewSanitizingReader wraps r with streaming UTF-8 sanitization.
func NewSanitizingReader(r io.Reader) *SanitizingReader {
	return &SanitizingReader{
		r:       r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (s *SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	// Carried bytes from an incomplete sequence go first. pending is always
	// shorter than UTFMax, so it fits any non-empty p.
	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	if allASCII(p[:n]) {
		return n, err
	}
	return s.scrub(p[:n], err == io.EOF), err
}

// scrub rewrites data in place, replacing invalid bytes with '?'. A possibly
// incomplete sequence at the tail is saved to pending unless atEOF, in which
// case it is invalid by definition. Returns the number of bytes kept.
func (s *SanitizingReader) scrub(data []byte, atEOF bool) int {
	w := 0
	for r := 0; r < len(data); {
		if !atEOF && !utf8.FullRune(data[r:]) && utf8.RuneStart(data[r]) && len(data)-r < utf8.UTFMax {
			s.pending = append(s.pending, data[r:]...)
			break
		}
		c, size := utf8.DecodeRune(data[r:])
		if c == utf8.RuneError && size == 1 {
			// '?' keeps the replacement single-byte so data never grows.
			data[w] = '?'
			w++
			r++
			continue
		}
		copy(data[w:], data[r:r+size])
		w += size
		r += size
	}
	return w
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// bom is the UTF-8 byte order mark Windows tools prepend to exports.
var bom = [3]byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader that drops a UTF-8 BOM from the start of r, if
// present. Useful ahead of fixed-header or numeric-key parsing, where no
// header normalization would otherwise remove it.
func SkipBOM(r io.Reader) io.Reader {
	return &bomReader{r: r}
}

type bomReader struct {
	r       io.Reader
	checked bool
	head    []byte
	eof     bool
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			b.eof = true
			err = nil
		}
		if err != nil {
			return 0, err
		}
		if n != 3 || buf != bom {
			b.head = append(b.head, buf[:n]...)
		}
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	if b.eof {
		return 0, io.EOF
	}
	return b.r.Read(p)
}

// CountingReader tracks bytes read through it for progress reporting.
type CountingReader struct {
	r     io.Reader
	n     int64
	total int64
}

// NewCountingReader wraps r, with total as the declared input size (0 if
// unknown).
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, total: total}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Bytes returns the number of bytes read so far.
func (c *CountingReader) Bytes() int64 { return c.n }

// Total returns the declared input size, 0 when unknown.
func (c *CountingReader) Total() int64 { return c.total }
