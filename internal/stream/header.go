package stream

import (
	"fmt"
	"strings"
)

type headerKind int

const (
	headerCapture headerKind = iota
	headerValidate
	headerNumeric
	headerFixed
)

// HeaderMode selects how the parser resolves column names. Construct one
// with CaptureHeader, ValidateHeader, NumericKeys or FixedHeaders; the zero
// value captures the first row.
type HeaderMode struct {
	kind  headerKind
	names []string
}

// CaptureHeader treats the first non-blank line as the header row. Its
// normalized fields become the column names; the line produces no row.
func CaptureHeader() HeaderMode {
	return HeaderMode{kind: headerCapture}
}

// ValidateHeader treats the first non-blank line as a header row that must
// match expected exactly, position by position, after normalization. A
// mismatch is a terminal error.
func ValidateHeader(expected []string) HeaderMode {
	return HeaderMode{kind: headerValidate, names: normalizeHeaders(expected)}
}

// NumericKeys disables header handling entirely. Every line is a data row
// keyed by 1-based position: "1", "2", "3", ...
func NumericKeys() HeaderMode {
	return HeaderMode{kind: headerNumeric}
}

// FixedHeaders assigns the given column names at construction time. No line
// is consumed for header capture; every line, including the first, is data.
func FixedHeaders(names []string) HeaderMode {
	return HeaderMode{kind: headerFixed, names: normalizeHeaders(names)}
}

// normalizeHeaders trims every name and strips a single leading byte order
// mark from the first. Windows tools routinely prefix exported CSVs with a
// BOM, which would otherwise corrupt the first column name.
func normalizeHeaders(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if i == 0 {
			f = strings.TrimPrefix(f, "\ufeff")
		}
		out[i] = strings.TrimSpace(f)
	}
	return out
}

// resolveHeader handles the exactly-once header transition for capture and
// validate modes. It returns the resolved names, or an error wrapping
// ErrHeaderMismatch naming both lists.
func (m HeaderMode) resolveHeader(fields []string) ([]string, error) {
	actual := normalizeHeaders(fields)

	switch m.kind {
	case headerCapture:
		return actual, nil
	case headerValidate:
		// Count decides first; content is only compared on equal widths.
		if len(actual) != len(m.names) {
			return nil, fmt.Errorf("%w: expected %d columns %v, got %d columns %v",
				ErrHeaderMismatch, len(m.names), m.names, len(actual), actual)
		}
		for i := range m.names {
			if actual[i] != m.names[i] {
				return nil, fmt.Errorf("%w: expected %v, got %v",
					ErrHeaderMismatch, m.names, actual)
			}
		}
		return m.names, nil
	default:
		return nil, fmt.Errorf("csvstream: header mode %d does not resolve from a line", m.kind)
	}
}

// consumesFirstLine reports whether the first non-blank line is a header
// row rather than data.
func (m HeaderMode) consumesFirstLine() bool {
	return m.kind == headerCapture || m.kind == headerValidate
}
