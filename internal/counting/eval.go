package counting

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Eval parses s as a restricted arithmetic expression and returns its numeric
// value. ok is false for anything that is not a pure arithmetic expression:
// names ("True", "__import__"), unknown operators, malformed syntax, or a
// result that is not a plain number. Integral results come back exact;
// fractional results are rounded to 10 decimal places.
func Eval(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Fast path: plain decimal literal.
	if plainNumberRe.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finishEval(v)
	}

	p := &exprParser{input: s}
	p.tokenize()
	if p.failed {
		return 0, false
	}
	v, ok := p.parseExpr()
	if !ok || p.pos != len(p.tokens) {
		return 0, false
	}
	if v.isList {
		return 0, false
	}
	return finishEval(v.num)
}

var plainNumberRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

func finishEval(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v == math.Trunc(v) {
		return v, true
	}
	return math.Round(v*1e10) / 1e10, true
}

// evalFuncs is the closed set of callable names.
var evalFuncs = map[string]struct{}{
	"abs": {}, "round": {}, "min": {}, "max": {}, "sum": {},
}

type tokKind int

const (
	tokNumber tokKind = iota
	tokIdent
	tokOp // one of + - * / // % ** ( ) [ ] ,
)

type token struct {
	kind tokKind
	num  float64
	text string
}

// value is either a number or a literal list of numbers.
type value struct {
	isList bool
	num    float64
	list   []float64
}

type exprParser struct {
	input  string
	tokens []token
	pos    int
	failed bool
}

func (p *exprParser) tokenize() {
	i := 0
	s := p.input
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			seenDot := false
			for j < len(s) {
				if s[j] >= '0' && s[j] <= '9' {
					j++
				} else if s[j] == '.' && !seenDot {
					seenDot = true
					j++
				} else {
					break
				}
			}
			n, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				p.failed = true
				return
			}
			p.tokens = append(p.tokens, token{kind: tokNumber, num: n})
			i = j
		case isIdentByte(c):
			j := i
			for j < len(s) && (isIdentByte(s[j]) || s[j] >= '0' && s[j] <= '9') {
				j++
			}
			p.tokens = append(p.tokens, token{kind: tokIdent, text: s[i:j]})
			i = j
		case c == '*':
			if i+1 < len(s) && s[i+1] == '*' {
				p.tokens = append(p.tokens, token{kind: tokOp, text: "**"})
				i += 2
			} else {
				p.tokens = append(p.tokens, token{kind: tokOp, text: "*"})
				i++
			}
		case c == '/':
			if i+1 < len(s) && s[i+1] == '/' {
				p.tokens = append(p.tokens, token{kind: tokOp, text: "//"})
				i += 2
			} else {
				p.tokens = append(p.tokens, token{kind: tokOp, text: "/"})
				i++
			}
		case c == '+' || c == '-' || c == '%' || c == '(' || c == ')' || c == '[' || c == ']' || c == ',':
			p.tokens = append(p.tokens, token{kind: tokOp, text: string(c)})
			i++
		default:
			p.failed = true
			return
		}
	}
	if len(p.tokens) == 0 {
		p.failed = true
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (p *exprParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *exprParser) acceptOp(text string) bool {
	if t, ok := p.peek(); ok && t.kind == tokOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

// parseExpr := term (('+'|'-') term)*
func (p *exprParser) parseExpr() (value, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return value{}, false
	}
	for {
		t, exists := p.peek()
		if !exists || t.kind != tokOp || t.text != "+" && t.text != "-" {
			return left, true
		}
		p.pos++
		right, ok := p.parseTerm()
		if !ok || left.isList || right.isList {
			return value{}, false
		}
		if t.text == "+" {
			left.num += right.num
		} else {
			left.num -= right.num
		}
	}
}

// parseTerm := unary (('*'|'/'|'//'|'%') unary)*
func (p *exprParser) parseTerm() (value, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return value{}, false
	}
	for {
		t, exists := p.peek()
		if !exists || t.kind != tokOp {
			return left, true
		}
		switch t.text {
		case "*", "/", "//", "%":
		default:
			return left, true
		}
		p.pos++
		right, ok := p.parseUnary()
		if !ok || left.isList || right.isList {
			return value{}, false
		}
		switch t.text {
		case "*":
			left.num *= right.num
		case "/":
			if right.num == 0 {
				return value{}, false
			}
			left.num /= right.num
		case "//":
			if right.num == 0 {
				return value{}, false
			}
			left.num = math.Floor(left.num / right.num)
		case "%":
			if right.num == 0 {
				return value{}, false
			}
			left.num = pymod(left.num, right.num)
		}
	}
}

// parseUnary := ('+'|'-') unary | power
func (p *exprParser) parseUnary() (value, bool) {
	if p.acceptOp("-") {
		v, ok := p.parseUnary()
		if !ok || v.isList {
			return value{}, false
		}
		v.num = -v.num
		return v, true
	}
	if p.acceptOp("+") {
		v, ok := p.parseUnary()
		if !ok || v.isList {
			return value{}, false
		}
		return v, true
	}
	return p.parsePower()
}

// parsePower := primary ('**' unary)?
// The right operand re-enters unary so 2**-1 parses; the unary rule above
// gives -2**2 == -(2**2).
func (p *exprParser) parsePower() (value, bool) {
	base, ok := p.parsePrimary()
	if !ok {
		return value{}, false
	}
	if p.acceptOp("**") {
		exp, ok := p.parseUnary()
		if !ok || base.isList || exp.isList {
			return value{}, false
		}
		r := math.Pow(base.num, exp.num)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return value{}, false
		}
		return value{num: r}, true
	}
	return base, true
}

func (p *exprParser) parsePrimary() (value, bool) {
	t, exists := p.peek()
	if !exists {
		return value{}, false
	}
	switch {
	case t.kind == tokNumber:
		p.pos++
		return value{num: t.num}, true
	case t.kind == tokIdent:
		if _, allowed := evalFuncs[t.text]; !allowed {
			return value{}, false
		}
		p.pos++
		if !p.acceptOp("(") {
			return value{}, false
		}
		args, ok := p.parseArgs()
		if !ok {
			return value{}, false
		}
		return applyFunc(t.text, args)
	case t.kind == tokOp && t.text == "(":
		p.pos++
		v, ok := p.parseExpr()
		if !ok || !p.acceptOp(")") {
			return value{}, false
		}
		return v, true
	case t.kind == tokOp && t.text == "[":
		return p.parseList()
	}
	return value{}, false
}

func (p *exprParser) parseArgs() ([]value, bool) {
	var args []value
	if p.acceptOp(")") {
		return args, true
	}
	for {
		v, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		args = append(args, v)
		if p.acceptOp(")") {
			return args, true
		}
		if !p.acceptOp(",") {
			return nil, false
		}
	}
}

func (p *exprParser) parseList() (value, bool) {
	if !p.acceptOp("[") {
		return value{}, false
	}
	var items []float64
	if p.acceptOp("]") {
		return value{isList: true, list: items}, true
	}
	for {
		v, ok := p.parseExpr()
		if !ok || v.isList {
			return value{}, false
		}
		items = append(items, v.num)
		if p.acceptOp("]") {
			return value{isList: true, list: items}, true
		}
		if !p.acceptOp(",") {
			return value{}, false
		}
	}
}

func applyFunc(name string, args []value) (value, bool) {
	// min/max accept either a single literal list or multiple numeric
	// arguments.
	flatten := func() ([]float64, bool) {
		if len(args) == 1 && args[0].isList {
			return args[0].list, len(args[0].list) > 0
		}
		nums := make([]float64, 0, len(args))
		for _, a := range args {
			if a.isList {
				return nil, false
			}
			nums = append(nums, a.num)
		}
		return nums, len(nums) > 0
	}

	switch name {
	case "abs":
		if len(args) != 1 || args[0].isList {
			return value{}, false
		}
		return value{num: math.Abs(args[0].num)}, true
	case "round":
		if len(args) == 1 && !args[0].isList {
			return value{num: pyround(args[0].num, 0)}, true
		}
		if len(args) == 2 && !args[0].isList && !args[1].isList {
			nd := args[1].num
			if nd != math.Trunc(nd) {
				return value{}, false
			}
			return value{num: pyround(args[0].num, int(nd))}, true
		}
		return value{}, false
	case "min", "max":
		nums, ok := flatten()
		if !ok {
			return value{}, false
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if name == "min" && n < best || name == "max" && n > best {
				best = n
			}
		}
		return value{num: best}, true
	case "sum":
		// sum requires an iterable, matching its usual contract.
		if len(args) != 1 || !args[0].isList {
			return value{}, false
		}
		var total float64
		for _, n := range args[0].list {
			total += n
		}
		return value{num: total}, true
	}
	return value{}, false
}

// pymod implements modulo with the sign of the divisor.
func pymod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func pyround(v float64, ndigits int) float64 {
	scale := math.Pow(10, float64(ndigits))
	return math.Round(v*scale) / scale
}
