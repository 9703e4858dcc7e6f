package stripegw

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
)

const (
	maxAttempts  = 3
	retryBackoff = 200 * time.Millisecond
)

// call runs one provider operation with a bounded deadline and a jittered
// retry on transient failures. Non-transient provider errors return
// immediately, wrapped.
func (c *Client) call(ctx context.Context, params *stripe.Params, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	params.Context = ctx

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBackoff<<(attempt-1) + time.Duration(rand.Int63n(int64(retryBackoff)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if c.onRetry != nil {
				c.onRetry()
			}
			c.log.Warn("retrying gateway call", zap.String("op", op), zap.Int("attempt", attempt+1))
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return wrapError(err)
		}
	}
	return wrapError(err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	// Transport-level failures have no status; retry them.
	return true
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return gateway.ErrNotFound
		}
		return &gateway.Error{
			Code:    string(stripeErr.Code),
			Message: stripeErr.Msg,
			Err:     err,
		}
	}
	return &gateway.Error{Code: "provider_unreachable", Message: err.Error(), Err: err}
}
