package middleware

import "errors"

// ErrRetryExhausted is returned by the retry middleware when every attempt
// failed. It wraps the last provider error, so both can be checked with
// errors.Is / errors.As.
var ErrRetryExhausted = errors.New("all retry attempts exhausted")
