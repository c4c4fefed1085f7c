// Package qstore is the durable queue store: the single serialized owner of
// each domain's queue and rate-limit table. It runs behind an rpcb server;
// stateless handlers reach it through the Client in this package.
package qstore

import (
	"context"

	"github.com/xoltia/karaokeq/queue"
)

// Store is the call surface of the durable queue store. No method performs
// a read-modify-write across values; every mutation is a whole-value
// replace driven by the caller. Compound-operation atomicity is therefore
// the caller's problem, and the caller does not actually solve it — a
// get-then-put pair can interleave with other callers.
type Store interface {
	// GetQueue returns the queue for a domain. ok is false when the domain
	// has no queue, which is distinct from an existing empty queue.
	GetQueue(ctx context.Context, domain string) (q queue.Queue, ok bool, err error)
	// PutQueue fully replaces the queue value for a domain.
	PutQueue(ctx context.Context, domain string, q queue.Queue) error
	DeleteQueue(ctx context.Context, domain string) error
	// GetRateLimit returns the epoch-ms timestamp of the session's last
	// accepted song request. ok is false when the session has none.
	GetRateLimit(ctx context.Context, domain, session string) (ms int64, ok bool, err error)
	PutRateLimit(ctx context.Context, domain, session string, ms int64) error
}

// Wire method names. The dispatch registry and the client must agree on
// these; they are the whole remote call surface.
const (
	methodGetQueue     = "getQ"
	methodPutQueue     = "putQ"
	methodDeleteQueue  = "deleteQ"
	methodGetRateLimit = "getRatelimit"
	methodPutRateLimit = "putRatelimit"
)
