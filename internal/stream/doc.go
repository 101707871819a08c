// Package stream implements an incremental, push-driven CSV parser.
//
// Input arrives as an ordered sequence of text fragments whose boundaries
// carry no meaning: a quoted field, a doubled-quote escape, or a CRLF pair
// may all split across fragments. The parser buffers only the text that has
// not yet resolved into a complete logical line, so memory stays proportional
// to the longest record, never to the input.
//
// A Parser is single-threaded: Push processes one fragment to completion
// (emitting every row that fragment finishes) before returning, and Finish
// flushes any unterminated final line. Rows, headers, errors, progress and
// the end-of-stream marker are delivered to subscribed Listeners strictly in
// line order. One parser instance must not be shared between goroutines;
// independent instances need no coordination.
package stream
