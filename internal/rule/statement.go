package rule

import (
	"fmt"
	"regexp"
)

// Grammar of the textual form. The statement split is greedy on the left
// side, matching the single top-level " --> " separator.
var (
	statementPattern = regexp.MustCompile(`^(.+) --> (.+)$`)
	conditionPattern = regexp.MustCompile(`^(\S+) (\S+) (\S+)$`)
	actionPattern    = regexp.MustCompile(`^(\S+) = (\S+)$`)
)

// Comparator compares the two sides of a condition.
type Comparator string

// Comparison operators.
const (
	Equal          Comparator = "=="
	NotEqual       Comparator = "!="
	Less           Comparator = "<"
	Greater        Comparator = ">"
	LessOrEqual    Comparator = "<="
	GreaterOrEqual Comparator = ">="
)

// ParseComparator validates a comparator token.
func ParseComparator(token string) (Comparator, error) {
	switch c := Comparator(token); c {
	case Equal, NotEqual, Less, Greater, LessOrEqual, GreaterOrEqual:
		return c, nil
	}
	return "", newParseError(ErrInvalidComparator, token)
}

// Compare applies the comparator.
func (c Comparator) Compare(lhs, rhs float64) bool {
	switch c {
	case Equal:
		return lhs == rhs
	case NotEqual:
		return lhs != rhs
	case Less:
		return lhs < rhs
	case Greater:
		return lhs > rhs
	case LessOrEqual:
		return lhs <= rhs
	case GreaterOrEqual:
		return lhs >= rhs
	}
	return false
}

// Condition is the boolean half of a statement.
type Condition struct {
	LHS        Expression
	Comparator Comparator
	RHS        Expression
}

// Evaluate evaluates both sides, left first, and compares them.
func (c Condition) Evaluate(values Values) (bool, error) {
	lhs, err := c.LHS.Evaluate(values)
	if err != nil {
		return false, err
	}
	rhs, err := c.RHS.Evaluate(values)
	if err != nil {
		return false, err
	}
	return c.Comparator.Compare(lhs, rhs), nil
}

func (c Condition) String() string {
	return c.LHS.String() + " " + string(c.Comparator) + " " + c.RHS.String()
}

// Channels returns the channels the condition reads.
func (c Condition) Channels() ChannelSet {
	s := ChannelSet{}
	c.LHS.walkChannels(s.Add)
	c.RHS.walkChannels(s.Add)
	return s
}

// Update is a computed value for a target channel.
type Update struct {
	Channel Channel
	Value   float64
}

// Action assigns an expression to a target channel.
type Action struct {
	Target Channel
	Value  Expression
}

// Evaluate computes the value to write to the target.
func (a Action) Evaluate(values Values) (Update, error) {
	v, err := a.Value.Evaluate(values)
	if err != nil {
		return Update{}, err
	}
	return Update{Channel: a.Target, Value: v}, nil
}

func (a Action) String() string {
	return a.Target.String() + " = " + a.Value.String()
}

// Statement is one parsed automation rule.
type Statement struct {
	Condition Condition
	Action    Action
}

// Parse parses "<condition> --> <action>". Any structural mismatch returns
// an error wrapping ErrInvalidStatement; nothing is partially built.
func Parse(text string) (Statement, error) {
	m := statementPattern.FindStringSubmatch(text)
	if m == nil {
		return Statement{}, newParseError(ErrInvalidStatement, text)
	}
	cond, err := parseCondition(m[1])
	if err != nil {
		return Statement{}, err
	}
	action, err := parseAction(m[2])
	if err != nil {
		return Statement{}, err
	}
	return Statement{Condition: cond, Action: action}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static rule tables.
func MustParse(text string) Statement {
	s, err := Parse(text)
	if err != nil {
		panic(fmt.Sprintf("rule.MustParse(%q): %v", text, err))
	}
	return s
}

func parseCondition(text string) (Condition, error) {
	m := conditionPattern.FindStringSubmatch(text)
	if m == nil {
		return Condition{}, newParseError(ErrInvalidCondition, text)
	}
	lhs, err := parseExpression(m[1])
	if err != nil {
		return Condition{}, err
	}
	cmp, err := ParseComparator(m[2])
	if err != nil {
		return Condition{}, err
	}
	rhs, err := parseExpression(m[3])
	if err != nil {
		return Condition{}, err
	}
	return Condition{LHS: lhs, Comparator: cmp, RHS: rhs}, nil
}

func parseAction(text string) (Action, error) {
	m := actionPattern.FindStringSubmatch(text)
	if m == nil {
		return Action{}, newParseError(ErrInvalidAction, text)
	}
	target, err := ParseChannel(m[1])
	if err != nil {
		return Action{}, err
	}
	value, err := parseExpression(m[2])
	if err != nil {
		return Action{}, err
	}
	return Action{Target: target, Value: value}, nil
}

// String returns the canonical "<condition> --> <action>" text.
func (s Statement) String() string {
	return s.Condition.String() + " --> " + s.Action.String()
}

// Evaluate evaluates the condition and, when it holds, the action.
// fired is false when the condition is false. A missing channel in either
// part is returned as *MissingChannelError.
func (s Statement) Evaluate(values Values) (update Update, fired bool, err error) {
	ok, err := s.Condition.Evaluate(values)
	if err != nil {
		return Update{}, false, err
	}
	if !ok {
		return Update{}, false, nil
	}
	update, err = s.Action.Evaluate(values)
	if err != nil {
		return Update{}, false, err
	}
	return update, true, nil
}

// Registered returns every channel the statement mentions, including the
// action target.
func (s Statement) Registered() ChannelSet {
	set := s.Condition.Channels()
	set.Add(s.Action.Target)
	s.Action.Value.walkChannels(set.Add)
	return set
}

// Subscribed returns the channels whose changes can flip the condition.
func (s Statement) Subscribed() ChannelSet {
	return s.Condition.Channels()
}

// Connected returns the channels that need an open session: the subscribed
// channels plus the action target.
func (s Statement) Connected() ChannelSet {
	set := s.Subscribed()
	set.Add(s.Action.Target)
	return set
}
