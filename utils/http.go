// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient returns the outbound client used for Admin API calls.
// Timeouts surface as transient upstream failures.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
