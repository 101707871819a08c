package stream

import (
	"strconv"
	"strings"
)

// Record is one materialized data row. Ownership transfers to the consumer
// at emission time; the parser keeps no reference after handing it off.
type Record struct {
	// Row is the 1-based data row number. Header and blank lines do not
	// advance it.
	Row int
	// Line is the 1-based logical line number the row came from.
	Line int
	// Raw is the raw line text, terminator excluded.
	Raw string
	// Fields is the full ordered field list, including any fields beyond
	// the header width that were dropped from Values.
	Fields []string
	// Values maps each resolved column name to its field. Columns past the
	// end of a short row map to the empty string.
	Values map[string]string
}

// FieldCount returns the number of raw fields in the row, which may differ
// from len(Values) for short or long rows.
func (r *Record) FieldCount() int {
	return len(r.Fields)
}

// materialize pairs fields with column names. With a nil header list the
// keys are synthetic 1-based positions. headers[i] beyond the field list
// maps to ""; fields beyond the header list stay out of the map and survive
// only in Record.Fields.
func materialize(fields, headers []string) map[string]string {
	if headers == nil {
		values := make(map[string]string, len(fields))
		for i, f := range fields {
			values[strconv.Itoa(i+1)] = f
		}
		return values
	}

	values := make(map[string]string, len(headers))
	for i, h := range headers {
		if i < len(fields) {
			values[h] = fields[i]
		} else {
			values[h] = ""
		}
	}
	return values
}

// overflowBlank reports whether every field past width is blank after
// trimming. Strict-column mode tolerates blank overflow, which spreadsheet
// exports produce constantly via trailing delimiters.
func overflowBlank(fields []string, width int) bool {
	for _, f := range fields[width:] {
		if !isBlank(f) {
			return false
		}
	}
	return true
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
