package formula

import "unicode"

type parser struct {
	input string
	text  []rune
	pos   int
}

func (p *parser) fail(reason string) error {
	return &MalformedError{Input: p.input, Offset: p.pos, Reason: reason}
}

func (p *parser) peek() (rune, bool) {
	if p.pos >= len(p.text) {
		return 0, false
	}
	return p.text[p.pos], true
}

func (p *parser) parse() (Formula, error) {
	if len(p.text) == 0 {
		return Formula{}, p.fail("empty formula")
	}
	total, err := p.sequence(0)
	if err != nil {
		return Formula{}, err
	}
	for {
		r, ok := p.peek()
		if !ok || !isAdductSeparator(r) {
			break
		}
		p.pos++
		factor := p.number(1)
		part, err := p.sequence(0)
		if err != nil {
			return Formula{}, err
		}
		if part.IsZero() {
			return Formula{}, p.fail("empty adduct")
		}
		total = total.Add(part.Multiply(factor))
	}
	charge, err := p.charge()
	if err != nil {
		return Formula{}, err
	}
	total.charge += charge
	if p.pos != len(p.text) {
		return Formula{}, p.fail("unexpected character " + string(p.text[p.pos]))
	}
	if len(total.counts) == 0 {
		return Formula{}, p.fail("no elements")
	}
	return total, nil
}

// sequence parses items until a closing bracket, separator, charge or the end
// of input. depth tracks bracket nesting.
func (p *parser) sequence(depth int) (Formula, error) {
	acc := Formula{counts: map[string]int{}}
	for {
		r, ok := p.peek()
		if !ok {
			return acc, nil
		}
		switch {
		case unicode.IsUpper(r):
			el := p.element()
			n := p.number(1)
			if n == 0 {
				return Formula{}, p.fail("zero count for " + el)
			}
			acc.counts[el] += n
		case r == '(' || r == '[' || r == '{':
			open := p.pos
			p.pos++
			inner, err := p.sequence(depth + 1)
			if err != nil {
				return Formula{}, err
			}
			c, ok := p.peek()
			if !ok || c != closing(r) {
				p.pos = open
				return Formula{}, p.fail("unbalanced bracket")
			}
			p.pos++
			n := p.number(1)
			if n == 0 || inner.IsZero() {
				return Formula{}, p.fail("empty group")
			}
			acc = acc.Add(inner.Multiply(n))
		case r == ')' || r == ']' || r == '}':
			if depth == 0 {
				return Formula{}, p.fail("unbalanced bracket")
			}
			return acc, nil
		case isAdductSeparator(r) || r == '+' || r == '-':
			return acc, nil
		default:
			return Formula{}, p.fail("unexpected character " + string(r))
		}
	}
}

func (p *parser) element() string {
	start := p.pos
	p.pos++
	for p.pos < len(p.text) && unicode.IsLower(p.text[p.pos]) && p.pos-start < 3 {
		p.pos++
	}
	return string(p.text[start:p.pos])
}

func (p *parser) number(def int) int {
	start := p.pos
	n := 0
	for p.pos < len(p.text) && p.text[p.pos] >= '0' && p.text[p.pos] <= '9' {
		n = n*10 + int(p.text[p.pos]-'0')
		p.pos++
	}
	if p.pos == start {
		return def
	}
	return n
}

func (p *parser) charge() (int, error) {
	total := 0
	for {
		r, ok := p.peek()
		if !ok {
			return total, nil
		}
		sign := 0
		switch r {
		case '+':
			sign = 1
		case '-':
			sign = -1
		default:
			return total, nil
		}
		p.pos++
		n := p.number(1)
		if n == 0 {
			return 0, p.fail("zero charge")
		}
		total += sign * n
	}
}

func closing(open rune) rune {
	switch open {
	case '(':
		return ')'
	case '[':
		return ']'
	}
	return '}'
}

func isAdductSeparator(r rune) bool {
	return r == '.' || r == '·' || r == '*' || r == '•'
}
