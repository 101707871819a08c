package validate

import (
	"strings"
	"testing"

	"github.com/zetlen/csvstream/internal/stream"
)

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{`="00123"`, "00123"},
		{`=""`, ""},
		{`="  padded  "`, "padded"},
		{`=x`, "=x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidNumeric(t *testing.T) {
	valid := []string{"0", "42", "-3.14", "+7", ".5", "1e6", "2.5E-3",
		"$1,234.56", "(99.50)", "€10", "£10"}
	invalid := []string{"", "abc", "1.2.3", "--4", "12a", "()"}

	for _, s := range valid {
		if !ValidNumeric(s) {
			t.Errorf("ValidNumeric(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidNumeric(s) {
			t.Errorf("ValidNumeric(%q) = true, want false", s)
		}
	}
}

func TestValidDate(t *testing.T) {
	valid := []string{"2024-01-15", "1/2/2024", "01.02.2024", "Jan 2, 2024",
		"20240102", "1/2/24"}
	invalid := []string{"", "not a date", "13/45/2024", "2024-99-99"}

	for _, s := range valid {
		if !ValidDate(s) {
			t.Errorf("ValidDate(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if ValidDate(s) {
			t.Errorf("ValidDate(%q) = true, want false", s)
		}
	}
}

func TestValidBool(t *testing.T) {
	for _, s := range []string{"true", "T", "Yes", "y", "1", "FALSE", "f", "No", "n", "0"} {
		if !ValidBool(s) {
			t.Errorf("ValidBool(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"", "maybe", "2", "yess"} {
		if ValidBool(s) {
			t.Errorf("ValidBool(%q) = true, want false", s)
		}
	}
}

func TestValidator(t *testing.T) {
	specs := []FieldSpec{
		{Name: "id", Type: FieldNumeric, Required: true},
		{Name: "name", Type: FieldText, Required: true},
		{Name: "joined", Type: FieldDate},
		{Name: "active", Type: FieldBool},
		{Name: "tier", Type: FieldEnum, EnumValues: []string{"free", "pro"}},
	}
	check := Validator(specs)

	rec := func(values map[string]string) *stream.Record {
		return &stream.Record{Row: 7, Values: values}
	}

	t.Run("valid row", func(t *testing.T) {
		errs := check(rec(map[string]string{
			"id": "42", "name": "Alice", "joined": "2024-01-15",
			"active": "yes", "tier": "Pro",
		}))
		if len(errs) != 0 {
			t.Errorf("errs = %v, want none", errs)
		}
	})

	t.Run("optional empties pass", func(t *testing.T) {
		errs := check(rec(map[string]string{
			"id": "42", "name": "Alice", "joined": "", "active": "", "tier": "",
		}))
		if len(errs) != 0 {
			t.Errorf("errs = %v, want none", errs)
		}
	})

	t.Run("each violation reported with row number", func(t *testing.T) {
		errs := check(rec(map[string]string{
			"id": "abc", "name": "", "joined": "nope", "active": "maybe", "tier": "gold",
		}))
		if len(errs) != 5 {
			t.Fatalf("errs = %v, want 5", errs)
		}
		for _, e := range errs {
			if !strings.HasPrefix(e, "row 7: ") {
				t.Errorf("error %q missing row prefix", e)
			}
		}
	})

	t.Run("missing required column", func(t *testing.T) {
		errs := check(rec(map[string]string{"name": "Alice"}))
		if len(errs) != 1 || !strings.Contains(errs[0], `"id"`) {
			t.Errorf("errs = %v, want one missing-column error for id", errs)
		}
	})
}

func TestParseFieldType(t *testing.T) {
	for token, want := range map[string]FieldType{
		"text": FieldText, "NUMERIC": FieldNumeric, " date ": FieldDate,
		"bool": FieldBool, "enum": FieldEnum,
	} {
		got, err := ParseFieldType(token)
		if err != nil || got != want {
			t.Errorf("ParseFieldType(%q) = %v, %v", token, got, err)
		}
	}
	if _, err := ParseFieldType("uuid"); err == nil {
		t.Error("expected error for unknown type")
	}
}
