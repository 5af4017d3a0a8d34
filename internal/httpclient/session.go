package httpclient

import (
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

// Session is the reusable connection state of a Client. Once closed it stays
// closed; the Client replaces it on the next request.
type Session struct {
	rc     *resty.Client
	closed atomic.Bool
}

// newSession owns its transport, so Close can drop idle connections.
func newSession(timeout time.Duration, log resty.Logger) *Session {
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetLogger(log)
	return &Session{rc: rc}
}

func (s *Session) Closed() bool { return s == nil || s.closed.Load() }

// Close releases idle connections. It is safe to call more than once.
func (s *Session) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.rc.GetClient().CloseIdleConnections()
}

func (s *Session) request() *resty.Request { return s.rc.R() }
