package qstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/xoltia/karaokeq/queue"
	"github.com/xoltia/karaokeq/rpcb"
)

// Register exposes a store on an rpcb server. The method set is closed:
// these five registrations are the entire remote surface of the actor.
func Register(srv *rpcb.Server, store Store) {
	srv.Handle(methodGetQueue, func(query url.Values, _ []json.RawMessage) (any, error) {
		domain, err := domainOf(query)
		if err != nil {
			return nil, err
		}
		q, ok, err := store.GetQueue(context.Background(), domain)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Absent queue is a no-content result, not an error; the
			// engine decides whether absence means 404 or self-healing.
			return nil, nil
		}
		return q, nil
	})

	srv.Handle(methodPutQueue, func(query url.Values, args []json.RawMessage) (any, error) {
		domain, err := domainOf(query)
		if err != nil {
			return nil, err
		}
		var q queue.Queue
		if err := rpcb.DecodeArgs(args, &q); err != nil {
			return nil, err
		}
		if err := store.PutQueue(context.Background(), domain, q); err != nil {
			return nil, err
		}
		return q, nil
	})

	srv.Handle(methodDeleteQueue, func(query url.Values, _ []json.RawMessage) (any, error) {
		domain, err := domainOf(query)
		if err != nil {
			return nil, err
		}
		return nil, store.DeleteQueue(context.Background(), domain)
	})

	srv.Handle(methodGetRateLimit, func(query url.Values, args []json.RawMessage) (any, error) {
		domain, err := domainOf(query)
		if err != nil {
			return nil, err
		}
		var session string
		if err := rpcb.DecodeArgs(args, &session); err != nil {
			return nil, err
		}
		ms, ok, err := store.GetRateLimit(context.Background(), domain, session)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return ms, nil
	})

	srv.Handle(methodPutRateLimit, func(query url.Values, args []json.RawMessage) (any, error) {
		domain, err := domainOf(query)
		if err != nil {
			return nil, err
		}
		var session string
		var ms int64
		if err := rpcb.DecodeArgs(args, &session, &ms); err != nil {
			return nil, err
		}
		return nil, store.PutRateLimit(context.Background(), domain, session, ms)
	})
}

func domainOf(query url.Values) (string, error) {
	domain := query.Get("domain")
	if domain == "" {
		return "", rpcb.Errorf(http.StatusBadRequest, "no domain specified")
	}
	return domain, nil
}
