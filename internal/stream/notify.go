package stream

// HeadersResolved announces the canonical column names, emitted at most once
// per parser instance.
type HeadersResolved struct {
	Headers []string
	Line    int
}

// Progress reports how far the parser has advanced through the input.
type Progress struct {
	// Bytes is the UTF-8 encoded size of all fragments consumed so far.
	Bytes int64
	// TotalBytes is the declared input size, 0 when unknown.
	TotalBytes int64
	Line       int
	Row        int
}

// Percent returns byte progress as 0-100, or 0 when the total is unknown.
func (p Progress) Percent() int {
	if p.TotalBytes <= 0 {
		return 0
	}
	return int(p.Bytes * 100 / p.TotalBytes)
}

// End marks successful exhaustion of the input. It is never emitted after a
// terminal parse error.
type End struct {
	// Rows counts emitted data rows.
	Rows int
	// Lines counts every logical line, blank and header lines included.
	Lines int
	// InvalidRows counts rows for which the validation callback returned at
	// least one error string. The parser counts them and nothing more.
	InvalidRows int
}

// Listener receives parser notifications. Any callback may be nil. Multiple
// listeners may subscribe; each event reaches them in subscription order,
// and events of different kinds follow pipeline order.
type Listener struct {
	OnHeaders  func(HeadersResolved)
	OnRow      func(*Record)
	OnError    func(*ParseError)
	OnProgress func(Progress)
	OnEnd      func(End)
}

func (p *Parser) notifyHeaders(ev HeadersResolved) {
	for _, l := range p.listeners {
		if l.OnHeaders != nil {
			l.OnHeaders(ev)
		}
	}
}

func (p *Parser) notifyRow(rec *Record) {
	for _, l := range p.listeners {
		if l.OnRow != nil {
			l.OnRow(rec)
		}
	}
}

func (p *Parser) notifyError(ev *ParseError) {
	for _, l := range p.listeners {
		if l.OnError != nil {
			l.OnError(ev)
		}
	}
}

func (p *Parser) notifyProgress(ev Progress) {
	for _, l := range p.listeners {
		if l.OnProgress != nil {
			l.OnProgress(ev)
		}
	}
}

func (p *Parser) notifyEnd(ev End) {
	for _, l := range p.listeners {
		if l.OnEnd != nil {
			l.OnEnd(ev)
		}
	}
}
