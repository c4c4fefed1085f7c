package qstore

import (
	"context"
	"net/url"

	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
)

// Client implements Store over an rpcb connection. One client is shared by
// all handler invocations; the domain travels per call.
type Client struct {
	rc *rpcb.Client
}

var _ Store = (*Client)(nil)

func NewClient(rc *rpcb.Client) *Client {
	return &Client{rc: rc}
}

func (c *Client) GetQueue(ctx context.Context, domain string) (q queue.Queue, ok bool, err error) {
	ok, err = c.rc.Call(ctx, methodGetQueue, domainQuery(domain), nil, &q)
	if err != nil || !ok {
		return nil, false, err
	}
	return q, true, nil
}

func (c *Client) PutQueue(ctx context.Context, domain string, q queue.Queue) error {
	_, err := c.rc.Call(ctx, methodPutQueue, domainQuery(domain), []any{q}, nil)
	return err
}

func (c *Client) DeleteQueue(ctx context.Context, domain string) error {
	_, err := c.rc.Call(ctx, methodDeleteQueue, domainQuery(domain), nil, nil)
	return err
}

func (c *Client) GetRateLimit(ctx context.Context, domain, session string) (ms int64, ok bool, err error) {
	ok, err = c.rc.Call(ctx, methodGetRateLimit, domainQuery(domain), []any{session}, &ms)
	if err != nil || !ok {
		return 0, false, err
	}
	return ms, true, nil
}

func (c *Client) PutRateLimit(ctx context.Context, domain, session string, ms int64) error {
	_, err := c.rc.Call(ctx, methodPutRateLimit, domainQuery(domain), []any{session, ms}, nil)
	return err
}

func domainQuery(domain string) url.Values {
	return url.Values{"domain": {domain}}
}
