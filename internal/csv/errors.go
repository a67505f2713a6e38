package csv

import (
	"errors"
	"fmt"
)

var (
	// ErrUnterminatedQuote is returned when a quoted cell is not closed before
	// the end of the logical line.
	ErrUnterminatedQuote = errors.New("csv: unterminated quoted cell")
	// ErrBareQuote is returned when a quote appears inside an unquoted cell or
	// text follows the closing quote of a quoted cell.
	ErrBareQuote = errors.New("csv: bare quote in cell")
	// ErrUnexpectedText is returned when a cell is followed by text that is
	// neither a delimiter nor the end of the line.
	ErrUnexpectedText = errors.New("csv: unexpected text after cell")
	// ErrConfiguration is the sentinel every *ConfigError matches with errors.Is.
	ErrConfiguration = errors.New("csv: invalid grammar configuration")
)

// ParseError carries the location of a tokenizing failure.
// Line is the physical line number; Column is the 1-based byte offset within it.
type ParseError struct {
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("csv: parse error on line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigError reports an inconsistent grammar configuration detected by New.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("csv: invalid configuration: %s: %s", e.Field, e.Reason)
}

// Is makes every ConfigError match ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}
