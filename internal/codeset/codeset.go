// Package codeset converts between sets of event codes and the list text used
// by the control surface, e.g. "5,9-11".
package codeset

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed list text.
var ErrSyntax = errors.New("codeset: invalid list")

// ErrRange is returned for codes at or beyond the limit passed to Parse.
var ErrRange = errors.New("codeset: code out of range")

// Set is a set of event codes.
type Set map[uint16]struct{}

// Of returns a Set holding codes.
func Of(codes ...uint16) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts c.
func (s Set) Add(c uint16) { s[c] = struct{}{} }

// Has reports whether c is in the set.
func (s Set) Has(c uint16) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the codes in ascending order.
func (s Set) Sorted() []uint16 {
	out := make([]uint16, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether both sets hold the same codes.
func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for c := range s {
		if !o.Has(c) {
			return false
		}
	}
	return true
}

// String formats the set as ascending comma separated ranges.
func (s Set) String() string {
	return Format(s)
}

// Format renders s as "a,b-c" with ascending runs collapsed to ranges.
// The empty set renders as "".
func Format(s Set) string {
	codes := s.Sorted()
	var b strings.Builder
	for i := 0; i < len(codes); {
		j := i
		for j+1 < len(codes) && codes[j+1] == codes[j]+1 {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(codes[i])))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(int(codes[j])))
		}
		i = j + 1
	}
	return b.String()
}

// Parse reads list text such as "5,9-11". Whitespace around the text and
// around each element is ignored, and an empty text yields an empty set.
// Every code must be below limit.
func Parse(text string, limit int) (Set, error) {
	s := Set{}
	text = strings.TrimSpace(text)
	if text == "" {
		return s, nil
	}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty element in %q", ErrSyntax, text)
		}
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, hi = strings.TrimSpace(part[:i]), strings.TrimSpace(part[i+1:])
		}
		a, err := parseCode(lo, limit)
		if err != nil {
			return nil, err
		}
		b, err := parseCode(hi, limit)
		if err != nil {
			return nil, err
		}
		if b < a {
			return nil, fmt.Errorf("%w: descending range %q", ErrSyntax, part)
		}
		for c := a; c <= b; c++ {
			s.Add(uint16(c))
		}
	}
	return s, nil
}

func parseCode(text string, limit int) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, text)
	}
	if n >= limit {
		return 0, fmt.Errorf("%w: %d >= %d", ErrRange, n, limit)
	}
	return n, nil
}
