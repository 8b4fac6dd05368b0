// Package retry re-runs an operation a bounded number of times. The whole
// operation is repeated on every attempt, and there is no delay between attempts.
package retry

// DefaultRetries is the attempt budget used for source sync.
const DefaultRetries = 3

// Notify is called after each failed attempt. remaining is the number of
// attempts left; zero means the error is about to be returned.
type Notify func(attempt int, err error, remaining int)

// Option customizes Do.
type Option func(*options)

type options struct {
	notify Notify
}

// WithNotify reports each failed attempt to fn.
func WithNotify(fn Notify) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Do runs op until it succeeds or attempts are used up. The error from the
// final attempt is returned unchanged. A budget below one still runs op once.
func Do(attempts int, op func() error, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if attempts < 1 {
		attempts = 1
	}
	remaining := attempts
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		remaining--
		if o.notify != nil {
			o.notify(attempt, err, remaining)
		}
		if remaining <= 0 {
			return err
		}
	}
}
