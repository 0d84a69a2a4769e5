// Package multierror combines several errors into one.
package multierror

import (
	"strings"
)

// MultiError is a list of errors that is itself an error.
type MultiError []error

// New returns nil if errs contains no non-nil error, the error itself if
// there is exactly one, or a MultiError otherwise.
func New(errs []error) error {
	var filtered MultiError
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	}
	return filtered
}

func (me MultiError) Error() string {
	messages := make([]string, 0, len(me))
	for _, err := range me {
		messages = append(messages, err.Error())
	}
	return "multiple errors: " + strings.Join(messages, "; ")
}

// Unwrap allows errors.Is and errors.As to look inside every error.
func (me MultiError) Unwrap() []error {
	return me
}
