// Package formula implements the chemical sum formula value type: parsing,
// canonical Hill-order rendering and comparison.
package formula

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Formula is an immutable multiset of element symbols with an optional net
// charge. The zero value is the empty formula.
type Formula struct {
	counts map[string]int
	charge int
}

// MalformedError reports formula text that cannot be parsed.
type MalformedError struct {
	Input  string
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed formula %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

// Parse reads a sum formula such as "C6H12O6", "Ca(OH)2", "CuSO4.5H2O" or
// "NH4+". Whitespace is ignored.
func Parse(s string) (Formula, error) {
	text := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	p := &parser{input: s, text: []rune(text)}
	return p.parse()
}

// MustParse is Parse for literals known to be valid. It panics on error.
func MustParse(s string) Formula {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// IsZero reports whether the formula holds no elements and no charge.
func (f Formula) IsZero() bool {
	return len(f.counts) == 0 && f.charge == 0
}

// Elements returns the element symbols in Hill order.
func (f Formula) Elements() []string {
	elements := make([]string, 0, len(f.counts))
	_, hasCarbon := f.counts["C"]
	for el := range f.counts {
		if hasCarbon && (el == "C" || el == "H") {
			continue
		}
		elements = append(elements, el)
	}
	sort.Strings(elements)
	if hasCarbon {
		head := []string{"C"}
		if _, ok := f.counts["H"]; ok {
			head = append(head, "H")
		}
		elements = append(head, elements...)
	}
	return elements
}

// String renders the formula in Hill order with the charge appended.
func (f Formula) String() string {
	var b strings.Builder
	for _, el := range f.Elements() {
		b.WriteString(el)
		if n := f.counts[el]; n != 1 {
			b.WriteString(strconv.Itoa(n))
		}
	}
	switch {
	case f.charge == 1:
		b.WriteByte('+')
	case f.charge == -1:
		b.WriteByte('-')
	case f.charge > 1:
		b.WriteString("+" + strconv.Itoa(f.charge))
	case f.charge < -1:
		b.WriteString("-" + strconv.Itoa(-f.charge))
	}
	return b.String()
}

// Equal reports whether both formulas hold the same atoms and charge.
func (f Formula) Equal(other Formula) bool {
	if f.charge != other.charge || len(f.counts) != len(other.counts) {
		return false
	}
	for el, n := range f.counts {
		if other.counts[el] != n {
			return false
		}
	}
	return true
}

// Add returns the sum of both formulas.
func (f Formula) Add(other Formula) Formula {
	out := Formula{counts: make(map[string]int, len(f.counts)+len(other.counts)), charge: f.charge + other.charge}
	for el, n := range f.counts {
		out.counts[el] += n
	}
	for el, n := range other.counts {
		out.counts[el] += n
	}
	return out
}

// Multiply returns the formula repeated n times.
func (f Formula) Multiply(n int) Formula {
	if n <= 0 {
		return Formula{}
	}
	out := Formula{counts: make(map[string]int, len(f.counts)), charge: f.charge * n}
	for el, c := range f.counts {
		out.counts[el] = c * n
	}
	return out
}

// MarshalText implements encoding.TextMarshaler.
func (f Formula) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Formula) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// SameOrUnknown reports whether two optional formulas are compatible: equal,
// or at least one of them unknown.
func SameOrUnknown(a, b *Formula) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Equal(*b)
}
