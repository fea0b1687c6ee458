package exchange

import (
	"github.com/pkg/errors"
)

// List is an ordered sequence of exchange names as returned by the source.
type List []string

// Failure kinds of a refresh.
var (
	// ErrTransport means the request could not be completed or the
	// source answered with a non-success status.
	ErrTransport = errors.New("exchange list transport failure")

	// ErrResponse means the body is not a JSON array of strings.
	ErrResponse = errors.New("exchange list response failure")

	// ErrTargetMissing means the selection widget is not in the document.
	ErrTargetMissing = errors.New("exchange selection widget not found")
)

// FetchFailure is a failed fetch of the exchange list.
// errors.Is matches it against its Kind.
type FetchFailure struct {
	Kind  error
	Cause error
}

// Error returns the kind followed by the cause.
func (f *FetchFailure) Error() string {
	return f.Kind.Error() + " : " + f.Cause.Error()
}

// Unwrap returns the cause.
func (f *FetchFailure) Unwrap() error { return f.Cause }

// Is reports whether target is the failure kind.
func (f *FetchFailure) Is(target error) bool { return target == f.Kind }

func transportFailure(cause error) error {
	return errors.WithStack(&FetchFailure{Kind: ErrTransport, Cause: cause})
}

func responseFailure(cause error) error {
	return errors.WithStack(&FetchFailure{Kind: ErrResponse, Cause: cause})
}

// IsFetchFailure reports whether err came from fetching or decoding the list.
func IsFetchFailure(err error) bool {
	var f *FetchFailure
	return errors.As(err, &f)
}

// Result is the outcome of one refresh. Err is nil on success.
type Result struct {
	Exchanges List
	Err       error
}

// OK reports whether the refresh rebuilt the widget.
func (r Result) OK() bool { return r.Err == nil }
