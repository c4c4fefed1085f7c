package rpcb

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Client invokes named methods on a remote Server. It is safe for
// concurrent use; per-call context (the domain) travels in the query
// string rather than in client state.
type Client struct {
	base string
	hc   *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		hc:   http.DefaultClient,
	}
}

// NewClientWithHTTP is for tests and callers that need a custom transport.
func NewClientWithHTTP(base string, hc *http.Client) *Client {
	c := NewClient(base)
	c.hc = hc
	return c
}

// Call invokes a method with positional args, decoding the JSON result
// into out when the response carries content. ok reports whether the
// remote call produced content; a no-content response leaves out
// untouched. Remote failures come back as *Error with the remote status
// and message.
func (c *Client) Call(ctx context.Context, method string, query url.Values, args []any, out any) (ok bool, err error) {
	u := c.base + "/" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if len(args) > 0 {
		encoded, err := json.Marshal(args)
		if err != nil {
			return false, err
		}
		body = bytes.NewReader(encoded)
	}

	// Always POST: operation identity lives in the path, and callers must
	// not lean on verb semantics for these calls.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(resp.Body)
		return false, &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, err
	}
	return true, nil
}
