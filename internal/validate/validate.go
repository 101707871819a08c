// Package validate builds per-row validation callbacks from declarative
// field specs. The parser invokes the callback once per record and treats
// the returned strings as opaque; interpreting them is the caller's job.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zetlen/csvstream/internal/stream"
)

// FieldType is the expected data type for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldDate
	FieldBool
	FieldEnum
)

// typeNames maps config-file type tokens to FieldType values.
var typeNames = map[string]FieldType{
	"text":    FieldText,
	"numeric": FieldNumeric,
	"date":    FieldDate,
	"bool":    FieldBool,
	"enum":    FieldEnum,
}

// ParseFieldType resolves a type token from a dataset definition.
func ParseFieldType(s string) (FieldType, error) {
	t, ok := typeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return FieldText, fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// FieldSpec declares validation rules for one column.
type FieldSpec struct {
	// Name is the column header the rule applies to.
	Name string
	// Type is the expected data type; FieldText accepts anything.
	Type FieldType
	// Required rejects rows where the value is empty or the column missing.
	Required bool
	// AllowEmpty permits empty values even when Required (the column must
	// still exist, but blank cells pass).
	AllowEmpty bool
	// EnumValues lists the accepted values for FieldEnum, compared
	// case-insensitively.
	EnumValues []string
}

// Validator returns a callback suitable for stream.Config.Validate. Each
// error string names the row number, column and reason, in the shape the
// failed-row export expects.
func Validator(specs []FieldSpec) func(*stream.Record) []string {
	return func(rec *stream.Record) []string {
		var errs []string
		for _, spec := range specs {
			if msg := spec.check(rec); msg != "" {
				errs = append(errs, fmt.Sprintf("row %d: %s", rec.Row, msg))
			}
		}
		return errs
	}
}

func (spec FieldSpec) check(rec *stream.Record) string {
	raw, ok := rec.Values[spec.Name]
	if !ok {
		if spec.Required {
			return fmt.Sprintf("missing required column %q", spec.Name)
		}
		return ""
	}

	value := CleanCell(raw)
	if value == "" {
		if spec.Required && !spec.AllowEmpty {
			return fmt.Sprintf("empty required field %q", spec.Name)
		}
		return ""
	}

	switch spec.Type {
	case FieldNumeric:
		if !ValidNumeric(value) {
			return fmt.Sprintf("invalid numeric for %q: %q", spec.Name, value)
		}
	case FieldDate:
		if !ValidDate(value) {
			return fmt.Sprintf("invalid date for %q: %q", spec.Name, value)
		}
	case FieldBool:
		if !ValidBool(value) {
			return fmt.Sprintf("invalid bool for %q: %q", spec.Name, value)
		}
	case FieldEnum:
		for _, v := range spec.EnumValues {
			if strings.EqualFold(value, v) {
				return ""
			}
		}
		return fmt.Sprintf("invalid enum for %q: %q", spec.Name, value)
	}
	return ""
}

// CleanCell trims a cell and unwraps the ="..." formula prefix Excel uses to
// force text formatting.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

// numericRe accepts integers, decimals and scientific notation.
var numericRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ValidNumeric reports whether s parses as a number after stripping currency
// symbols, thousands separators and the accounting-negative "(...)" form.
func ValidNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	for _, sym := range []string{"$", "€", "£", ","} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)
	if neg {
		s = "-" + s
	}
	return numericRe.MatchString(s)
}

var (
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
)

// ValidDate reports whether s parses under any accepted date layout.
func ValidDate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, layout := range fourDigitYearLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	for _, layout := range twoDigitYearLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// ValidBool reports whether s is one of the accepted truthy/falsy spellings.
func ValidBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "false", "f", "no", "n", "0":
		return true
	}
	return false
}
