package cnwlicense

import (
	"net/http"
	"time"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the Client.
// The client's Timeout will be overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *Client) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *Client) {
		o.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) ClientOption {
	return func(o *Client) {
		o.userAgent = ua
	}
}

// WithMachineID sets the machine id used when a request leaves it empty.
func WithMachineID(id string) ClientOption {
	return func(o *Client) {
		o.machineID = id
	}
}
