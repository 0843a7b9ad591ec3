// Package hogql builds HogQL filter expressions as a small typed tree.
//
// Every node renders itself; callers never concatenate predicate strings.
package hogql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Expr is a renderable HogQL expression.
type Expr interface {
	Render() string
}

// Raw is trusted HogQL text, used for function bodies and column aliases.
type Raw string

func (r Raw) Render() string { return string(r) }

// Field is a validated column or property path such as properties.$host.
type Field string

func (f Field) Render() string { return string(f) }

var fieldPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// ParseField accepts dotted identifiers only, so user-supplied breakdown
// fields cannot smuggle arbitrary HogQL into a query.
func ParseField(value string) (Field, error) {
	value = strings.TrimSpace(value)
	if !fieldPattern.MatchString(value) {
		return "", fmt.Errorf("invalid field %q", value)
	}
	return Field(value), nil
}

// String is an escaped string literal.
type String string

func (s String) Render() string { return Quote(string(s)) }

// Number is a numeric literal.
type Number float64

func (n Number) Render() string { return strconv.FormatFloat(float64(n), 'f', -1, 64) }

// Timestamp renders as a quoted warehouse datetime literal.
type Timestamp time.Time

func (t Timestamp) Render() string { return Quote(FormatTime(time.Time(t))) }

// True is the always-true predicate.
type True struct{}

func (True) Render() string { return "1=1" }

type Op string

const (
	OpEq      Op = "="
	OpNotEq   Op = "!="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
)

// Compare is a binary comparison.
type Compare struct {
	Left  Expr
	Op    Op
	Right Expr
}

func (c Compare) Render() string {
	return c.Left.Render() + " " + string(c.Op) + " " + c.Right.Render()
}

// Tuple renders a parenthesized list, the right side of IN.
type Tuple []Expr

func (t Tuple) Render() string { return "(" + joinRendered(t) + ")" }

// Array renders a HogQL array literal.
type Array []Expr

func (a Array) Render() string { return "[" + joinRendered(a) + "]" }

// Call is a function application.
type Call struct {
	Name string
	Args []Expr
}

func (c Call) Render() string { return c.Name + "(" + joinRendered(c.Args) + ")" }

// And is a conjunction. Use Combine to get the canonical form.
type And []Expr

func (a And) Render() string {
	switch len(a) {
	case 0:
		return True{}.Render()
	case 1:
		return a[0].Render()
	default:
		return "and(" + joinRendered(a) + ")"
	}
}

// Or is a disjunction.
type Or []Expr

func (o Or) Render() string {
	switch len(o) {
	case 0:
		return "1=0"
	case 1:
		return o[0].Render()
	default:
		return "or(" + joinRendered(o) + ")"
	}
}

// Not negates its operand.
type Not struct{ Expr Expr }

func (n Not) Render() string { return "not(" + n.Expr.Render() + ")" }

// Alias renders "expr AS name".
type Alias struct {
	Expr Expr
	Name string
}

func (a Alias) Render() string { return a.Expr.Render() + " AS " + a.Name }

func joinRendered(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.Render()
	}
	return strings.Join(parts, ", ")
}

// Quote escapes backslashes and single quotes and wraps value in quotes.
func Quote(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

// OrderTerm is one ORDER BY key.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// OrderBy renders a comma separated ORDER BY list.
type OrderBy []OrderTerm

func (o OrderBy) Render() string {
	parts := make([]string, len(o))
	for i, term := range o {
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		parts[i] = term.Expr.Render() + " " + dir
	}
	return strings.Join(parts, ", ")
}
