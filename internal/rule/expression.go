package rule

import (
	"math"
	"strconv"
)

// Operator is an arithmetic operator of a composed expression.
type Operator string

// Arithmetic operators.
const (
	OpAdd Operator = "+"
	OpSub Operator = "-"
	OpMul Operator = "*"
	OpDiv Operator = "/"
)

// Apply combines two operands. Division by zero yields an infinity with the
// sign of the numerator; a zero numerator gives +Inf.
func (op Operator) Apply(lhs, rhs float64) float64 {
	switch op {
	case OpAdd:
		return lhs + rhs
	case OpSub:
		return lhs - rhs
	case OpMul:
		return lhs * rhs
	case OpDiv:
		if rhs == 0 {
			if lhs < 0 {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
		return lhs / rhs
	default:
		return math.NaN()
	}
}

// Expression is a channel reference, a numeric literal or a binary
// composition of two expressions.
type Expression interface {
	// Evaluate computes the value against a snapshot of channel values.
	Evaluate(values Values) (float64, error)

	// String returns the canonical text form.
	String() string

	// walkChannels visits referenced channels left to right, depth first.
	walkChannels(visit func(Channel))
}

// Literal is a constant number.
type Literal struct {
	Value float64
}

// Evaluate returns the constant.
func (l Literal) Evaluate(Values) (float64, error) { return l.Value, nil }

// String formats the number so that it parses back to the same value.
func (l Literal) String() string { return formatNumber(l.Value) }

func (Literal) walkChannels(func(Channel)) {}

// ChannelRef reads the current value of a channel.
type ChannelRef struct {
	Channel Channel
}

// Evaluate looks the channel up in values.
func (r ChannelRef) Evaluate(values Values) (float64, error) {
	v, ok := values[r.Channel]
	if !ok {
		return 0, &MissingChannelError{Channel: r.Channel}
	}
	return v, nil
}

// String returns "device:channel".
func (r ChannelRef) String() string { return r.Channel.String() }

func (r ChannelRef) walkChannels(visit func(Channel)) { visit(r.Channel) }

// Binary combines two expressions with an arithmetic operator.
type Binary struct {
	Op  Operator
	LHS Expression
	RHS Expression
}

// Evaluate evaluates the left operand fully, then the right, then combines.
func (b Binary) Evaluate(values Values) (float64, error) {
	lhs, err := b.LHS.Evaluate(values)
	if err != nil {
		return 0, err
	}
	rhs, err := b.RHS.Evaluate(values)
	if err != nil {
		return 0, err
	}
	return b.Op.Apply(lhs, rhs), nil
}

// String returns "(lhs) op (rhs)".
func (b Binary) String() string {
	return "(" + b.LHS.String() + ") " + string(b.Op) + " (" + b.RHS.String() + ")"
}

func (b Binary) walkChannels(visit func(Channel)) {
	b.LHS.walkChannels(visit)
	b.RHS.walkChannels(visit)
}

// Num returns a literal expression.
func Num(v float64) Expression { return Literal{Value: v} }

// Ref returns a channel reference expression.
func Ref(deviceID, channelID string) Expression {
	return ChannelRef{Channel: NewChannel(deviceID, channelID)}
}

// Add returns lhs + rhs.
func Add(lhs, rhs Expression) Expression { return Binary{Op: OpAdd, LHS: lhs, RHS: rhs} }

// Sub returns lhs - rhs.
func Sub(lhs, rhs Expression) Expression { return Binary{Op: OpSub, LHS: lhs, RHS: rhs} }

// Mul returns lhs * rhs.
func Mul(lhs, rhs Expression) Expression { return Binary{Op: OpMul, LHS: lhs, RHS: rhs} }

// Div returns lhs / rhs.
func Div(lhs, rhs Expression) Expression { return Binary{Op: OpDiv, LHS: lhs, RHS: rhs} }

// ChannelsOf returns the channels referenced by an expression in
// left-to-right, depth-first order. Duplicates are kept.
func ChannelsOf(e Expression) []Channel {
	var out []Channel
	e.walkChannels(func(c Channel) { out = append(out, c) })
	return out
}

// parseExpression parses a single token: a channel or a number.
func parseExpression(token string) (Expression, error) {
	if c, err := ParseChannel(token); err == nil {
		return ChannelRef{Channel: c}, nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) {
		return nil, newParseError(ErrInvalidExpression, token)
	}
	return Literal{Value: v}, nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
