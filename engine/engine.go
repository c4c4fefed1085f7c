// Package engine implements the queue operations: voting, requesting with
// rate limiting, ordering, aging, and the admin-gated mutations. It runs
// in stateless handler processes and reads and writes the durable store
// through its remote call surface; nothing here may assume two store calls
// are atomic together.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xoltia/karaokeq/catalog"
	"github.com/xoltia/karaokeq/qstore"
	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
	"github.com/xoltia/karaokeq/sidekv"
)

// Config holds the per-domain tunables. Stored values are partial; absent
// fields fall back to the defaults in a single merge at load time.
type Config struct {
	RequestRateLimitMins int     `json:"requestRateLimitMins"`
	WaitingVoteBonus     float64 `json:"waitingVoteBonus"`
}

var DefaultConfig = Config{
	RequestRateLimitMins: 2,
	WaitingVoteBonus:     0.5,
}

// ConfigPatch is the stored (and PATCHable) partial form of Config.
type ConfigPatch struct {
	RequestRateLimitMins *int     `json:"requestRateLimitMins,omitempty"`
	WaitingVoteBonus     *float64 `json:"waitingVoteBonus,omitempty"`
}

// Identity is the caller context for one operation: the domain being
// addressed and the opaque identity header values.
type Identity struct {
	Domain       string
	UserName     string
	SessionToken string
	AdminToken   string
}

func (id Identity) VoteToken() string {
	return queue.Token(id.UserName, id.SessionToken)
}

type Engine struct {
	store    qstore.Store
	side     *sidekv.KV
	defaults Config
	now      func() time.Time
}

type Option func(*Engine)

// WithNow overrides the clock, used by rate-limit tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaults overrides the built-in config defaults.
func WithDefaults(cfg Config) Option {
	return func(e *Engine) { e.defaults = cfg }
}

func New(store qstore.Store, side *sidekv.KV, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		side:     side,
		defaults: DefaultConfig,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func adminKey(domain string) string  { return "a_" + domain }
func configKey(domain string) string { return "c_" + domain }

// op is the state of one operation. It memoizes the stored admin token and
// the merged config so each is fetched at most once per request, and it is
// never shared across requests: different requests may target different
// domains.
type op struct {
	e          *Engine
	id         Identity
	adminToken *string
	cfg        *Config
}

func (e *Engine) begin(id Identity) *op {
	return &op{e: e, id: id}
}

func (o *op) storedAdminToken() (token string, exists bool, err error) {
	if o.adminToken == nil {
		val, ok, err := o.e.side.Get(adminKey(o.id.Domain))
		if err != nil {
			return "", false, err
		}
		tok := ""
		if ok {
			tok = string(val)
		}
		o.adminToken = &tok
	}
	return *o.adminToken, *o.adminToken != "", nil
}

// isAdmin is the advisory admin check: plain equality against the token
// stored at queue creation. Used where admin status merely unlocks an
// exception (revoting, rate-limit bypass).
func (o *op) isAdmin() (bool, error) {
	stored, exists, err := o.storedAdminToken()
	if err != nil || !exists {
		return false, err
	}
	return o.id.AdminToken != "" && o.id.AdminToken == stored, nil
}

// requireAdmin gates the admin operations with a 403 on any mismatch.
func (o *op) requireAdmin() error {
	stored, exists, err := o.storedAdminToken()
	if err != nil {
		return err
	}
	if !exists {
		return rpcb.Errorf(http.StatusForbidden, "No admin token exists for this queue")
	}
	if o.id.AdminToken != stored {
		return rpcb.Errorf(http.StatusForbidden, "Incorrect admin token")
	}
	return nil
}

func (o *op) config() (Config, error) {
	if o.cfg == nil {
		cfg := o.e.defaults
		raw, ok, err := o.e.side.Get(configKey(o.id.Domain))
		if err != nil {
			return cfg, err
		}
		if ok {
			// Overlay: fields present in the stored partial replace the
			// defaults, absent fields keep them.
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("stored config for %s: %w", o.id.Domain, err)
			}
		}
		o.cfg = &cfg
	}
	return *o.cfg, nil
}

// getQ loads the domain's queue. A missing queue with a surviving admin
// token is treated as store loss and re-initialized empty instead of
// returning 404; a fresh (uncached) token read keeps this recovery path
// from firing on a domain that was properly deleted moments ago.
func (o *op) getQ(ctx context.Context) (queue.Queue, error) {
	q, ok, err := o.e.store.GetQueue(ctx, o.id.Domain)
	if err != nil {
		return nil, err
	}
	if ok {
		return q, nil
	}
	_, exists, err := o.e.side.GetFresh(adminKey(o.id.Domain))
	if err != nil {
		return nil, err
	}
	if exists {
		if err := o.e.store.PutQueue(ctx, o.id.Domain, queue.Queue{}); err != nil {
			return nil, err
		}
		return queue.Queue{}, nil
	}
	return nil, rpcb.Errorf(http.StatusNotFound, "Queue not found")
}

func (o *op) setQ(ctx context.Context, q queue.Queue) (queue.Queue, error) {
	if q == nil {
		q = queue.Queue{}
	}
	if err := o.e.store.PutQueue(ctx, o.id.Domain, q); err != nil {
		return nil, err
	}
	return q, nil
}

// setVotes substitutes the updated item into the queue and re-sorts. Every
// mutation that changes votes or waiting votes funnels through here.
func (o *op) setVotes(ctx context.Context, updated queue.Item, q queue.Queue) (queue.Queue, error) {
	if err := o.validateItem(updated, false); err != nil {
		return nil, err
	}
	return o.setQ(ctx, queue.Sort(q.Replace(updated)))
}

func (o *op) validateItem(i queue.Item, checkAvailable bool) error {
	if err := queue.Validate(i); err != nil {
		return rpcb.Errorf(http.StatusUnprocessableEntity, "%s", err)
	}
	if checkAvailable && !catalog.Available(i.ID) {
		return rpcb.Errorf(http.StatusNotFound, "Song not available: %s", i.ID)
	}
	return nil
}

func (e *Engine) nowMs() int64 {
	return e.now().UnixMilli()
}
