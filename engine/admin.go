package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
)

// AdminResetQueue empties the queue but keeps the domain.
func (e *Engine) AdminResetQueue(ctx context.Context, id Identity) (queue.Queue, error) {
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return nil, err
	}
	return o.setQ(ctx, queue.Queue{})
}

// AdminSetVotes pads or truncates a song's ballot list to exactly count,
// filling with the admin's own vote token.
func (e *Engine) AdminSetVotes(ctx context.Context, id Identity, songID string, count int) (queue.Queue, error) {
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, rpcb.Errorf(http.StatusUnprocessableEntity, "votes must be a non-negative number")
	}

	q, err := o.getQ(ctx)
	if err != nil {
		return nil, err
	}
	idx := q.Find(songID)
	if idx < 0 {
		return nil, rpcb.Errorf(http.StatusNotFound, "Song not found in queue")
	}

	item := q[idx]
	votes := slices.Clone(item.Votes)
	if len(votes) > count {
		votes = votes[:count]
	}
	for len(votes) < count {
		votes = append(votes, id.VoteToken())
	}
	item.Votes = votes
	return o.setVotes(ctx, item, q)
}

// AdminRemoveSong deletes a song from the queue.
func (e *Engine) AdminRemoveSong(ctx context.Context, id Identity, songID string) (queue.Queue, error) {
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return nil, err
	}

	q, err := o.getQ(ctx)
	if err != nil {
		return nil, err
	}
	if q.Find(songID) < 0 {
		return nil, rpcb.Errorf(http.StatusNotFound, "Song not found in queue")
	}
	return o.setQ(ctx, q.Remove(songID))
}

// AdminSetQueue replaces the whole queue. Items are validated for shape
// and catalog availability; order is stored exactly as given.
func (e *Engine) AdminSetQueue(ctx context.Context, id Identity, q queue.Queue) (queue.Queue, error) {
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(q))
	for _, item := range q {
		if err := o.validateItem(item, true); err != nil {
			return nil, err
		}
		if seen[item.ID] {
			return nil, rpcb.Errorf(http.StatusUnprocessableEntity, "Duplicate song in queue: %s", item.ID)
		}
		seen[item.ID] = true
	}
	return o.setQ(ctx, q)
}

// AdminSetConfig merges a partial config into the stored partial. The
// merge works on the stored patch, not the merged view, so clearing a
// field later still falls back to defaults.
func (e *Engine) AdminSetConfig(ctx context.Context, id Identity, patch ConfigPatch) error {
	_ = ctx
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return err
	}
	if patch.RequestRateLimitMins != nil && *patch.RequestRateLimitMins < 0 {
		return rpcb.Errorf(http.StatusUnprocessableEntity, "requestRateLimitMins must be a non-negative number")
	}
	if patch.WaitingVoteBonus != nil && *patch.WaitingVoteBonus < 0 {
		return rpcb.Errorf(http.StatusUnprocessableEntity, "waitingVoteBonus must be a non-negative number")
	}

	var stored ConfigPatch
	raw, ok, err := e.side.GetFresh(configKey(id.Domain))
	if err != nil {
		return err
	}
	if ok {
		if err := json.Unmarshal(raw, &stored); err != nil {
			// Unreadable stored config: start over from the patch alone.
			stored = ConfigPatch{}
		}
	}
	if patch.RequestRateLimitMins != nil {
		stored.RequestRateLimitMins = patch.RequestRateLimitMins
	}
	if patch.WaitingVoteBonus != nil {
		stored.WaitingVoteBonus = patch.WaitingVoteBonus
	}

	merged, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return e.side.Put(configKey(id.Domain), merged)
}

// AdminDeleteQueue removes the domain: queue, admin token and config go
// together. Rate-limit entries have no independent lifecycle and are left
// behind.
func (e *Engine) AdminDeleteQueue(ctx context.Context, id Identity) error {
	o := e.begin(id)
	if err := o.requireAdmin(); err != nil {
		return err
	}
	if err := e.store.DeleteQueue(ctx, id.Domain); err != nil {
		return err
	}
	if err := e.side.Delete(adminKey(id.Domain)); err != nil {
		return err
	}
	return e.side.Delete(configKey(id.Domain))
}

// AdminAuthorize performs only the admin check. Clients use it as a
// capability probe before showing the admin dashboard.
func (e *Engine) AdminAuthorize(ctx context.Context, id Identity) error {
	_ = ctx
	return e.begin(id).requireAdmin()
}
