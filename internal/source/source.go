// Package source extracts fragment sequences for the stream parser from
// ordinary io.Readers. It provides the reader-to-fragment pump plus the
// wrappers uploads need in practice: BOM skipping, UTF-8 sanitization, byte
// counting for progress, and content-encoding decompression.
package source

import (
	"context"
	"io"
)

// DefaultFragmentSize is the pump's read size when none is configured.
const DefaultFragmentSize = 64 * 1024

// FragmentSink consumes an ordered fragment sequence with an end signal.
// *stream.Parser satisfies it. Push must not retain the fragment slice.
type FragmentSink interface {
	Push(ctx context.Context, fragment []byte) error
	Finish(ctx context.Context) error
}

// Pump reads r to exhaustion, delivering each chunk to sink as one fragment
// and signalling the end of input. Fragment boundaries are whatever the
// reader returns; the sink must not assign them any meaning.
func Pump(ctx context.Context, r io.Reader, sink FragmentSink, fragmentSize int) error {
	if fragmentSize <= 0 {
		fragmentSize = DefaultFragmentSize
	}
	buf := make([]byte, fragmentSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if perr := sink.Push(ctx, buf[:n]); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return sink.Finish(ctx)
		}
		if err != nil {
			return err
		}
	}
}
