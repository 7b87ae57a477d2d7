package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// New returns an http.Client for engine API calls.
// It respects HTTP(S)_PROXY/ALL_PROXY/NO_PROXY from the environment.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(),
	}
}

// NewStreaming returns an http.Client for long-lived streaming requests.
// It carries no overall timeout; callers bound the request with a context.
func NewStreaming() *http.Client {
	return &http.Client{Transport: Transport()}
}

// Transport returns an http.Transport clone with environment proxy support.
func Transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}

	transport := base.Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return transport
}

// ResponseTooLargeError reports that a response body exceeded its read limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeded limit of %d bytes", e.Limit)
}

// ReadAllWithLimit reads r to completion, failing with ResponseTooLargeError
// once more than limit bytes arrive. A limit <= 0 means unbounded.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
