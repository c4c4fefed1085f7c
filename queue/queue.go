// Package queue holds the shared queue data model and the ordering rules
// applied after every vote-changing mutation.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidItem = errors.New("invalid queue item")

// Item is a single entry in a domain's queue. RequestedAt is epoch
// milliseconds to match the wire format used by the display clients.
type Item struct {
	ID           string   `json:"id"`
	RequestedAt  int64    `json:"requestedAt,omitempty"`
	WaitingVotes float64  `json:"waitingVotes,omitempty"`
	Votes        []string `json:"votes"`
}

// Queue is the ordered per-domain song list. Position 0 is the song
// currently playing and position 1 is up next; neither is moved by
// vote-based sorting.
type Queue []Item

// PinnedPositions is the number of leading queue slots excluded from
// vote-based sorting.
const PinnedPositions = 2

// Token builds a vote token from a display name and session token.
// Uniqueness of tokens is the "one person, one vote" proxy.
func Token(userName, sessionToken string) string {
	return userName + "_" + sessionToken
}

// Score is the effective vote count used for ordering.
func (i Item) Score() float64 {
	return float64(len(i.Votes)) + i.WaitingVotes
}

func (i Item) HasVote(token string) bool {
	return slices.Contains(i.Votes, token)
}

// Validate checks the shape of an item: a non-empty id and vote tokens
// that look like "<name>_<session>".
func Validate(i Item) error {
	if i.ID == "" {
		return invalidItem(i)
	}
	for _, v := range i.Votes {
		if !strings.Contains(v, "_") {
			return invalidItem(i)
		}
	}
	return nil
}

func invalidItem(i Item) error {
	detail, err := json.Marshal(i)
	if err != nil {
		return ErrInvalidItem
	}
	return fmt.Errorf("%w: %s", ErrInvalidItem, detail)
}

// Find returns the index of the item with the given id, or -1.
func (q Queue) Find(id string) int {
	return slices.IndexFunc(q, func(i Item) bool { return i.ID == id })
}

// IDs returns the song ids in queue order.
func (q Queue) IDs() []string {
	ids := make([]string, len(q))
	for i, item := range q {
		ids[i] = item.ID
	}
	return ids
}

// Replace substitutes the item with a matching id, leaving order untouched.
// Items with no matching id are left as they are.
func (q Queue) Replace(updated Item) Queue {
	out := slices.Clone(q)
	if i := out.Find(updated.ID); i >= 0 {
		out[i] = updated
	}
	return out
}

// Remove deletes the item with the given id, preserving the order of the
// remaining items.
func (q Queue) Remove(id string) Queue {
	i := q.Find(id)
	if i < 0 {
		return q
	}
	return slices.Delete(slices.Clone(q), i, i+1)
}

// Age adds bonus waiting votes to every non-pinned item. Called when the
// now-playing pointer advances so that long-waiting songs eventually
// surface without new votes.
func (q Queue) Age(bonus float64) Queue {
	out := slices.Clone(q)
	for i := PinnedPositions; i < len(out); i++ {
		out[i].WaitingVotes += bonus
	}
	return out
}

// Sort rebuilds the queue as [pinned..., rest sorted descending by score].
// The sort is stable: ties keep their existing relative order. This is the
// single place queue ordering is decided.
func Sort(q Queue) Queue {
	if len(q) <= PinnedPositions {
		return slices.Clone(q)
	}
	out := slices.Clone(q)
	rest := out[PinnedPositions:]
	slices.SortStableFunc(rest, func(a, b Item) int {
		switch {
		case a.Score() > b.Score():
			return -1
		case a.Score() < b.Score():
			return 1
		default:
			return 0
		}
	})
	return out
}
