// Package httpclient is the shared base for talking to external HTTP APIs.
//
// A Client owns one base URL, one token-bucket limiter and one lazily created
// session. Every attempt re-checks the session, waits for the limiter, sends
// the request and classifies the outcome. Transport failures and 5xx responses
// are retried with exponential backoff and full jitter; 4xx responses are
// returned immediately as *HTTPError.
package httpclient
