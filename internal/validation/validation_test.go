package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateQuery_Blank(t *testing.T) {
	for _, in := range []string{"", "   ", "\t"} {
		got, err := ValidateQuery(in, 0)
		if err != nil || got != "" {
			t.Errorf("ValidateQuery(%q) = %q, %v; want empty, nil", in, got, err)
		}
	}
}

func TestValidateQuery_TooLong(t *testing.T) {
	_, err := ValidateQuery(strings.Repeat("a", 101), 0)
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
	if _, err := ValidateQuery(strings.Repeat("a", 10), 5); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("custom max: error = %v, want ErrQueryTooLong", err)
	}
}

func TestValidateQuery_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  London ", "London"},
		{"St. John's", "St. John's"},
		{"Winston-Salem, NC", "Winston-Salem, NC"},
		{"São Paulo", "São Paulo"},
		{"東京", "東京"},
		{"10115", "10115"},
	}
	for _, tt := range tests {
		got, err := ValidateQuery(tt.input, 0)
		if err != nil {
			t.Errorf("ValidateQuery(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateQuery(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateQuery_InvalidChars(t *testing.T) {
	for _, in := range []string{"London; DROP", "<script>", "a/b", "tab\there"} {
		if _, err := ValidateQuery(in, 0); !errors.Is(err, ErrQueryInvalidChars) {
			t.Errorf("ValidateQuery(%q) error = %v, want ErrQueryInvalidChars", in, err)
		}
	}
}
