package stream

import "strings"

// SplitFields tokenizes one logical line into its ordered field values.
//
// The line must not contain an unquoted line terminator (the scanner
// guarantees this). A quote toggles the in-quotes state unless it is the
// first of a doubled pair inside quotes, which emits one literal quote.
// The delimiter splits fields only outside quotes; every other byte is
// copied verbatim. An empty line yields a single empty field, so callers
// can distinguish "no line" from "one empty field".
//
// If the line ends inside an open quote, SplitFields returns
// ErrUnbalancedQuotes. The scanner only hands over such a line at
// end-of-input, since mid-stream it keeps buffering until the quote closes.
func SplitFields(line string, delim byte) ([]string, error) {
	fields := make([]string, 0, 8)
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == delim && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}

	if inQuotes {
		return nil, ErrUnbalancedQuotes
	}
	return append(fields, cur.String()), nil
}
