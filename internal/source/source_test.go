package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// captureSink records fragments and the end signal.
type captureSink struct {
	fragments []string
	finished  bool
	pushErr   error
}

func (c *captureSink) Push(_ context.Context, fragment []byte) error {
	if c.pushErr != nil {
		return c.pushErr
	}
	c.fragments = append(c.fragments, string(fragment))
	return nil
}

func (c *captureSink) Finish(context.Context) error {
	c.finished = true
	return nil
}

func TestPump(t *testing.T) {
	input := strings.Repeat("abc,def\n", 100)
	sink := &captureSink{}

	if err := Pump(context.Background(), strings.NewReader(input), sink, 16); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if !sink.finished {
		t.Error("end signal not delivered")
	}
	if got := strings.Join(sink.fragments, ""); got != input {
		t.Errorf("reassembled fragments differ from input (%d vs %d bytes)", len(got), len(input))
	}
}

func TestPumpPropagatesSinkError(t *testing.T) {
	sinkErr := errors.New("sink refused")
	sink := &captureSink{pushErr: sinkErr}

	err := Pump(context.Background(), strings.NewReader("data"), sink, 0)
	if !errors.Is(err, sinkErr) {
		t.Errorf("err = %v, want sink error", err)
	}
	if sink.finished {
		t.Error("end signal delivered after sink error")
	}
}

func TestSanitizingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{
			name:  "valid ascii",
			input: []byte("hello,world"),
			want:  "hello,world",
		},
		{
			name:  "valid multibyte",
			input: []byte("héllo,wörld"),
			want:  "héllo,wörld",
		},
		{
			name:  "invalid byte replaced",
			input: []byte{'h', 'e', 0x80, 'l', 'o'},
			want:  "he?lo",
		},
		{
			name:  "truncated sequence at eof replaced",
			input: []byte{'a', 0xE4, 0xB8},
			want:  "a??",
		},
		{
			name:  "empty",
			input: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewSanitizingReader(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSanitizingReaderSplitSequence verifies a multi-byte rune split across
// reads survives intact.
func TestSanitizingReaderSplitSequence(t *testing.T) {
	input := []byte("é,ü,日")

	one := NewSanitizingReader(oneByteReader{bytes.NewReader(input)})
	got, err := io.ReadAll(one)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(input) {
		t.Errorf("split reads corrupted data: got %q, want %q", got, input)
	}
}

type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return o.r.Read(p)
}

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"with bom", append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b")...), "a,b"},
		{"without bom", []byte("a,b"), "a,b"},
		{"only bom", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"shorter than bom", []byte{0xEF, 0xBB}, string([]byte{0xEF, 0xBB})},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(SkipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCountingReader(t *testing.T) {
	input := strings.Repeat("x", 1000)
	r := NewCountingReader(strings.NewReader(input), int64(len(input)))

	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Bytes() != int64(len(input)) {
		t.Errorf("Bytes() = %d, want %d", r.Bytes(), len(input))
	}
	if r.Total() != int64(len(input)) {
		t.Errorf("Total() = %d, want %d", r.Total(), len(input))
	}
}

func TestDecode(t *testing.T) {
	payload := []byte("id,name\n1,Alice\n2,Bob\n")

	t.Run("identity", func(t *testing.T) {
		for _, enc := range []string{"", "identity", "IDENTITY"} {
			r, err := Decode(bytes.NewReader(payload), enc)
			if err != nil {
				t.Fatalf("Decode(%q): %v", enc, err)
			}
			got, _ := io.ReadAll(r)
			if !bytes.Equal(got, payload) {
				t.Errorf("Decode(%q) altered payload", enc)
			}
		}
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}

		r, err := Decode(&buf, "gzip")
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("gzip round trip: got %q", got)
		}
	})

	t.Run("lz4", func(t *testing.T) {
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}

		r, err := Decode(&buf, "lz4")
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("lz4 round trip: got %q", got)
		}
	})

	t.Run("unknown encoding", func(t *testing.T) {
		if _, err := Decode(strings.NewReader(""), "zstd"); err == nil {
			t.Error("expected error for unsupported encoding")
		}
	})
}
