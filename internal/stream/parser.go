package stream

import (
	"context"
	"fmt"
)

// DefaultProgressInterval is the row interval between progress notifications
// when Config.ProgressInterval is left zero.
const DefaultProgressInterval = 1000

// Config controls a single Parser instance.
type Config struct {
	// Delimiter is the field separator. Zero means ','.
	Delimiter byte

	// Header selects one of the four header behaviors. The zero value
	// captures the first row.
	Header HeaderMode

	// StrictColumns rejects rows carrying non-blank fields beyond the
	// resolved header width. The violation is terminal: the offending row is
	// suppressed and the rest of the stream is not processed.
	StrictColumns bool

	// ProgressInterval is the number of rows between Progress notifications.
	// Zero applies DefaultProgressInterval; a negative value disables
	// progress entirely.
	ProgressInterval int

	// TotalBytes is the declared input size for progress ratios, 0 if
	// unknown.
	TotalBytes int64

	// Sink, when set, receives every materialized Record after the row
	// notification. A sink error stops processing and is returned from
	// Push or Finish.
	Sink func(ctx context.Context, rec *Record) error

	// Validate, when set, is invoked once per Record before the Sink. The
	// parser counts records with a non-empty result and does not interpret
	// the strings.
	Validate func(rec *Record) []string
}

// Parser is the stream orchestrator. It owns all scan state exclusively and
// must only be used from one goroutine.
type Parser struct {
	cfg  Config
	scan lineScanner

	listeners []Listener

	headers  []string
	resolved bool

	line        int
	row         int
	invalidRows int
	bytes       int64
	lastProg    int

	termErr  *ParseError
	finished bool
}

// New validates cfg and returns a Parser ready to accept fragments.
func New(cfg Config) (*Parser, error) {
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	switch cfg.Delimiter {
	case '"', '\n', '\r':
		return nil, fmt.Errorf("csvstream: invalid delimiter %q", cfg.Delimiter)
	}
	if cfg.ProgressInterval == 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}

	p := &Parser{cfg: cfg}

	switch cfg.Header.kind {
	case headerValidate:
		if len(cfg.Header.names) == 0 {
			return nil, fmt.Errorf("csvstream: validate header mode requires an expected header list")
		}
	case headerFixed:
		if len(cfg.Header.names) == 0 {
			return nil, fmt.Errorf("csvstream: fixed header mode requires a header list")
		}
		p.headers = cfg.Header.names
		p.resolved = true
	case headerNumeric:
		// No header list ever; rows are keyed by position.
		p.resolved = true
	}

	return p, nil
}

// Subscribe registers a listener for parser notifications. Subscribe must be
// called before the first Push.
func (p *Parser) Subscribe(l Listener) {
	p.listeners = append(p.listeners, l)
}

// Push consumes one input fragment, emitting every row the fragment
// completes before returning. Fragment boundaries carry no meaning; the
// slice is copied and may be reused by the caller. After a terminal parse
// error Push is a no-op.
//
// Push returns an error only for cancellation or a sink failure; parse
// errors are reported through the error notification instead.
func (p *Parser) Push(ctx context.Context, fragment []byte) error {
	if p.termErr != nil || p.finished {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.bytes += int64(len(fragment))
	p.scan.push(fragment)
	return p.drain(ctx, false)
}

// Finish signals end of input. Any buffered text is processed as a final,
// possibly unterminated, logical line, then End is emitted unless a terminal
// error occurred.
func (p *Parser) Finish(ctx context.Context) error {
	if p.termErr != nil || p.finished {
		return nil
	}
	if err := p.drain(ctx, true); err != nil {
		return err
	}
	if p.termErr == nil {
		if line, ok := p.scan.flush(); ok {
			if err := p.processLine(ctx, line); err != nil {
				return err
			}
		}
	}
	if p.termErr != nil {
		return nil
	}

	p.finished = true
	p.notifyEnd(End{Rows: p.row, Lines: p.line, InvalidRows: p.invalidRows})
	return nil
}

// drain processes every complete line currently in the scan buffer.
// Cancellation is checked between lines; an in-flight line always completes.
func (p *Parser) drain(ctx context.Context, final bool) error {
	for p.termErr == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := p.scan.next(final)
		if !ok {
			return nil
		}
		if err := p.processLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// processLine runs one logical line through the pipeline: count, skip
// blanks, tokenize, resolve headers, materialize, notify, sink.
func (p *Parser) processLine(ctx context.Context, line string) error {
	p.line++

	if isBlank(line) {
		return nil
	}

	fields, err := SplitFields(line, p.cfg.Delimiter)
	if err != nil {
		p.fail(line, err)
		return nil
	}

	if !p.resolved && p.cfg.Header.consumesFirstLine() {
		headers, err := p.cfg.Header.resolveHeader(fields)
		if err != nil {
			p.fail(line, err)
			return nil
		}
		p.headers = headers
		p.resolved = true
		p.notifyHeaders(HeadersResolved{Headers: headers, Line: p.line})
		return nil
	}

	if p.cfg.StrictColumns && p.headers != nil && len(fields) > len(p.headers) &&
		!overflowBlank(fields, len(p.headers)) {
		p.fail(line, fmt.Errorf("%w: row %d has %d columns but expected %d",
			ErrColumnCount, p.row+1, len(fields), len(p.headers)))
		return nil
	}

	rec := &Record{
		Row:    p.row + 1,
		Line:   p.line,
		Raw:    line,
		Fields: fields,
		Values: materialize(fields, p.headers),
	}
	p.row++

	p.notifyRow(rec)

	if p.cfg.Validate != nil {
		if errs := p.cfg.Validate(rec); len(errs) > 0 {
			p.invalidRows++
		}
	}

	if p.cfg.ProgressInterval > 0 && p.row-p.lastProg >= p.cfg.ProgressInterval {
		p.lastProg = p.row
		p.notifyProgress(Progress{
			Bytes:      p.bytes,
			TotalBytes: p.cfg.TotalBytes,
			Line:       p.line,
			Row:        p.row,
		})
	}

	if p.cfg.Sink != nil {
		if err := p.cfg.Sink(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

// fail records the terminal error and notifies subscribers. No further lines
// are processed and End is never emitted.
func (p *Parser) fail(line string, err error) {
	p.termErr = &ParseError{Line: p.line, Raw: line, Err: err}
	p.notifyError(p.termErr)
}

// Err returns the terminal parse error, or nil while the stream is healthy.
func (p *Parser) Err() error {
	if p.termErr == nil {
		return nil
	}
	return p.termErr
}

// Headers returns the resolved column names, or nil before resolution and in
// numeric-key mode. The returned slice must not be modified.
func (p *Parser) Headers() []string {
	return p.headers
}

// Lines returns the count of logical lines seen so far, blanks included.
func (p *Parser) Lines() int { return p.line }

// Rows returns the count of data rows emitted so far.
func (p *Parser) Rows() int { return p.row }

// BytesSeen returns the total size of all consumed fragments.
func (p *Parser) BytesSeen() int64 { return p.bytes }
