package payment

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v81"
)

var (
	ErrInvalidPayload   = errors.New("invalid payload")
	ErrInvalidSignature = errors.New("invalid signature")
)

const msgUnavailable = "payment processor unavailable, please try again later"

// GatewayError is a failed processor call. Message is safe to show to clients;
// the cause is kept for logs only.
type GatewayError struct {
	Op         string
	Message    string
	Code       string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// classify turns a processor error into a GatewayError.
// Request and card errors carry the processor's own user-facing message; credentials,
// rate limits, outages and network failures collapse into a generic message.
func classify(op string, err error) *GatewayError {
	gerr := &GatewayError{Op: op, Message: msgUnavailable, Err: err}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return gerr
	}

	gerr.Code = string(stripeErr.Code)
	gerr.StatusCode = stripeErr.HTTPStatusCode

	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized,
		stripeErr.HTTPStatusCode == http.StatusForbidden,
		stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return gerr
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest, stripeErr.Type == stripe.ErrorTypeCard:
		if stripeErr.Msg != "" {
			gerr.Message = stripeErr.Msg
		}
	}

	return gerr
}
