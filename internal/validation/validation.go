package validation

import (
	"errors"
	"strings"
	"unicode"
)

// DefaultMaxQueryLen is the longest place query sent to the geocoder, in runes.
const DefaultMaxQueryLen = 100

// ErrQueryTooLong is returned when a query exceeds the maximum length.
var ErrQueryTooLong = errors.New("search query too long")

// ErrQueryInvalidChars is returned when a query contains characters no place name uses.
var ErrQueryInvalidChars = errors.New("search query contains invalid characters")

// ValidateQuery trims a place search query and checks its length (maxLen runes; 0 means
// DefaultMaxQueryLen) and characters: letters (Unicode), marks, digits, space and , - ' .
// A blank query is valid and comes back empty; it means "clear the results".
func ValidateQuery(input string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLen
	}
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '\'', '.':
		return true
	}
	return false
}
