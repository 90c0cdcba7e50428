package errors

import (
	"fmt"
	"strings"
)

/*
Error aggregates multiple errors and loose messages into a single error
value. Used at boundaries where several independent failures should be
reported together, such as a consolidation run summary.
*/
type Error struct {
	Errs []error
	Msgs []any
}

func New(errs ...any) error {
	err := &Error{}

	for _, msg := range errs {
		switch v := msg.(type) {
		case error:
			err.Errs = append(err.Errs, v)
		case string:
			err.Msgs = append(err.Msgs, v)
		}
	}

	return err
}

func (err *Error) Error() string {
	builder := &strings.Builder{}

	for _, err := range err.Errs {
		builder.WriteString(err.Error())
		builder.WriteString("\n")
	}

	for _, msg := range err.Msgs {
		builder.WriteString(fmt.Sprintf("%v\n", msg))
	}

	return builder.String()
}

func (err *Error) Unwrap() []error {
	return err.Errs
}
