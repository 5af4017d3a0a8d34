package httpclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"

	"github.com/go-resty/resty/v2"
)

// RetryPolicy decides whether a finished attempt should be retried.
// resp is nil when the transport failed; err is nil when a response arrived.
type RetryPolicy func(ctx context.Context, resp *resty.Response, err error) bool

// DefaultRetryPolicy retries transport failures (including per-attempt
// timeouts) and 5xx responses. 4xx responses and a cancelled caller context
// are terminal. DNS lookups that report "not found" are terminal too.
func DefaultRetryPolicy(ctx context.Context, resp *resty.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return false
		}
		return true
	}
	return resp != nil && resp.StatusCode() >= 500
}

// retryDelay returns the wait before the attempt after `attempt` (1-based):
// a uniform draw from [0, min(max, base*2^(attempt-1))].
func retryDelay(base, maxD time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD || d <= 0 {
			d = maxD
			break
		}
	}
	if d > maxD {
		d = maxD
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
