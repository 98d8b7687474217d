package rule

import (
	"errors"
	"fmt"
)

// Parse errors. Every parse failure wraps ErrInvalidStatement plus the
// more specific sentinel describing which part of the rule was rejected:
//
//	if errors.Is(err, rule.ErrInvalidChannel) {
//	    // malformed device:channel token
//	}
var (
	// ErrInvalidStatement is returned for any rule text that cannot be parsed.
	ErrInvalidStatement = errors.New("rule: invalid statement")

	// ErrInvalidCondition is returned when the condition is not "expr cmp expr".
	ErrInvalidCondition = errors.New("rule: invalid condition")

	// ErrInvalidAction is returned when the action is not "channel = expr".
	ErrInvalidAction = errors.New("rule: invalid action")

	// ErrInvalidComparator is returned for an unknown comparison operator.
	ErrInvalidComparator = errors.New("rule: invalid comparator")

	// ErrInvalidExpression is returned when a token is neither a channel nor a number.
	ErrInvalidExpression = errors.New("rule: invalid expression")

	// ErrInvalidChannel is returned for a malformed device:channel token.
	ErrInvalidChannel = errors.New("rule: invalid channel")

	// ErrMissingChannel is matched by every *MissingChannelError.
	ErrMissingChannel = errors.New("rule: missing channel value")
)

// MissingChannelError reports that evaluation needed the value of a channel
// that has no entry in the value table.
type MissingChannelError struct {
	Channel Channel
}

func (e *MissingChannelError) Error() string {
	return fmt.Sprintf("rule: missing channel value: %s", e.Channel)
}

// Is lets errors.Is(err, ErrMissingChannel) match.
func (e *MissingChannelError) Is(target error) bool {
	return target == ErrMissingChannel
}

// parseError joins the statement sentinel with the specific cause.
type parseError struct {
	cause error
	text  string
}

func (e *parseError) Error() string {
	return fmt.Sprintf("%v: %v: %q", ErrInvalidStatement, e.cause, e.text)
}

func (e *parseError) Unwrap() []error {
	return []error{ErrInvalidStatement, e.cause}
}

func newParseError(cause error, text string) error {
	return &parseError{cause: cause, text: text}
}
