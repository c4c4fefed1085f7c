package engine

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/xoltia/karaokeq/catalog"
	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
)

// minSimpleLines is how many lines the simple-queue output is padded to;
// the display client misbehaves on shorter lists.
const minSimpleLines = 10

// Queue returns the full queue for the caller's domain.
func (e *Engine) Queue(ctx context.Context, id Identity) (queue.Queue, error) {
	return e.begin(id).getQ(ctx)
}

// SimpleQueue returns the queue as newline-joined song ids, padded with
// the filler song. Read-only.
func (e *Engine) SimpleQueue(ctx context.Context, id Identity) (string, error) {
	q, err := e.begin(id).getQ(ctx)
	if err != nil {
		return "", err
	}
	return simpleFormat(q), nil
}

// UpdatedSimpleQueue reconciles the queue against what the display client
// is actually playing, then returns the simple format.
//
// Unknown current song: someone (an admin, presumably) is playing a song
// nobody queued, so it is prepended as a synthetic entry. Current song
// deeper in the queue: the now-playing pointer advanced, so recently
// played items ahead of it are dropped, it moves to position 0, and every
// non-pinned item earns the waiting-vote bonus. Current song already at
// position 0: stable state, nothing is written, so repeated polls do not
// inflate waiting votes.
func (e *Engine) UpdatedSimpleQueue(ctx context.Context, id Identity, currentSongID string, songIDHistory []string) (string, error) {
	if currentSongID == "" {
		return "", rpcb.Errorf(http.StatusBadRequest, "No currentSongId specified")
	}

	o := e.begin(id)
	q, err := o.getQ(ctx)
	if err != nil {
		return "", err
	}

	switch idx := q.Find(currentSongID); {
	case idx < 0:
		if currentSongID == catalog.First() || currentSongID == catalog.FillerSongID {
			return simpleFormat(q), nil
		}
		synthetic := queue.Item{
			ID:          currentSongID,
			RequestedAt: e.nowMs(),
			Votes:       []string{id.VoteToken()},
		}
		q, err = o.setQ(ctx, append(queue.Queue{synthetic}, q...))
		if err != nil {
			return "", err
		}
	case idx > 0:
		cfg, err := o.config()
		if err != nil {
			return "", err
		}
		played := make(map[string]bool, len(songIDHistory))
		for _, sid := range songIDHistory {
			played[sid] = true
		}
		next := make(queue.Queue, 0, len(q))
		next = append(next, q[idx])
		for _, item := range q[:idx] {
			if !played[item.ID] {
				next = append(next, item)
			}
		}
		next = append(next, q[idx+1:]...)
		q, err = o.setQ(ctx, next.Age(cfg.WaitingVoteBonus))
		if err != nil {
			return "", err
		}
	}

	return simpleFormat(q), nil
}

// Create establishes a new domain: its admin token and its initial queue.
func (e *Engine) Create(ctx context.Context, id Identity, initial queue.Queue) (queue.Queue, error) {
	o := e.begin(id)

	if _, ok, err := e.store.GetQueue(ctx, id.Domain); err != nil {
		return nil, err
	} else if ok {
		return nil, rpcb.Errorf(http.StatusBadRequest, "Domain already exists")
	}
	if id.AdminToken == "" {
		return nil, rpcb.Errorf(http.StatusBadRequest, "No admin token supplied")
	}
	for _, item := range initial {
		if err := o.validateItem(item, true); err != nil {
			return nil, err
		}
	}

	if err := e.side.Put(adminKey(id.Domain), []byte(id.AdminToken)); err != nil {
		return nil, err
	}
	return o.setQ(ctx, initial)
}

// Vote appends the caller's ballot to a queued song and re-sorts. A token
// may appear once per song; only the admin may vote repeatedly.
func (e *Engine) Vote(ctx context.Context, id Identity, songID string) (queue.Queue, error) {
	o := e.begin(id)
	q, err := o.getQ(ctx)
	if err != nil {
		return nil, err
	}

	idx := q.Find(songID)
	if idx < 0 {
		return nil, rpcb.Errorf(http.StatusNotFound, "Song not found in queue")
	}

	item := q[idx]
	if item.HasVote(id.VoteToken()) {
		admin, err := o.isAdmin()
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, rpcb.Errorf(http.StatusMethodNotAllowed, "You already voted on this song")
		}
	}

	item.Votes = append(slices.Clone(item.Votes), id.VoteToken())
	return o.setVotes(ctx, item, q)
}

// Request queues a new song with the caller's ballot. Catalog membership
// and duplicate checks come first; the rate limiter only sees requests
// that could otherwise succeed.
func (e *Engine) Request(ctx context.Context, id Identity, songID string) (queue.Queue, error) {
	o := e.begin(id)

	if !catalog.Available(songID) {
		return nil, rpcb.Errorf(http.StatusNotFound, "Song not available: %s", songID)
	}

	q, err := o.getQ(ctx)
	if err != nil {
		return nil, err
	}
	if q.Find(songID) >= 0 {
		return nil, rpcb.Errorf(http.StatusBadRequest, "Song already in queue: %s", songID)
	}

	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	if cfg.RequestRateLimitMins > 0 {
		admin, err := o.isAdmin()
		if err != nil {
			return nil, err
		}
		if !admin {
			if err := o.checkRateLimit(ctx, cfg); err != nil {
				return nil, err
			}
		}
	}

	item := queue.Item{
		ID:          songID,
		RequestedAt: e.nowMs(),
		Votes:       []string{id.VoteToken()},
	}
	return o.setVotes(ctx, item, append(q, item))
}

// checkRateLimit rejects a request made within the configured window of
// the session's last accepted one, and otherwise stamps the session
// immediately — before the queue write — so a request that fails later
// still counts against the next window.
func (o *op) checkRateLimit(ctx context.Context, cfg Config) error {
	window := time.Duration(cfg.RequestRateLimitMins) * time.Minute
	now := o.e.nowMs()

	last, ok, err := o.e.store.GetRateLimit(ctx, o.id.Domain, o.id.SessionToken)
	if err != nil {
		return err
	}
	if ok && now-last < window.Milliseconds() {
		return rpcb.Errorf(http.StatusTooManyRequests,
			"You need to wait %d minutes in between song requests", cfg.RequestRateLimitMins)
	}
	return o.e.store.PutRateLimit(ctx, o.id.Domain, o.id.SessionToken, now)
}

// Config returns the domain's tunables, defaults overlaid with whatever
// partial config an admin has stored.
func (e *Engine) Config(ctx context.Context, id Identity) (Config, error) {
	_ = ctx
	return e.begin(id).config()
}

func simpleFormat(q queue.Queue) string {
	ids := q.IDs()
	for len(ids) < minSimpleLines {
		ids = append(ids, catalog.FillerSongID)
	}
	return strings.Join(ids, "\n")
}
