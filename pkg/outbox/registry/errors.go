package registry

// NonRetryableError marks a failure that will not heal on retry, such as a
// malformed row or a missing topic. The publisher parks such events at once.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox failure"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }
