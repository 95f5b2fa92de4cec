package transport

import (
	"context"
	lib "net/http"
)

// Client provides an HTTP client instance that's interface-compatible
// with the standard library.
type Client struct {
	mw []func(req *lib.Request)
	hc *lib.Client
}

// NewClient returns an HTTP client with the provided configuration options.
func NewClient(options ...ClientOption) (*Client, error) {
	c := &Client{
		hc: &lib.Client{
			Transport: lib.DefaultTransport,
		},
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Head issues a HEAD to the specified URL.
func (c *Client) Head(url string) (resp *lib.Response, err error) {
	req, err := lib.NewRequestWithContext(context.TODO(), lib.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// Do sends an HTTP request and returns an HTTP response, following
// policy (such as redirects, cookies, auth) as configured on the
// client.
func (c *Client) Do(req *lib.Request) (*lib.Response, error) {
	return c.do(req)
}

// apply interceptor(s) and execute request.
func (c *Client) do(req *lib.Request) (*lib.Response, error) {
	for _, ci := range c.mw {
		ci(req)
	}
	return c.hc.Do(req)
}
