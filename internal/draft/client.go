package draft

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"ojclient/internal/gateway"
	"ojclient/pkg/errors"
)

const (
	saveDraftPath   = "/drafts/save_draft"
	latestDraftPath = "/drafts/latest"
)

// Store is the server side of draft persistence.
type Store interface {
	Save(ctx context.Context, d Draft) (Record, error)
	// Latest returns DraftNotFound when the problem has no draft.
	Latest(ctx context.Context, problemID int64) (Record, error)
}

// Client is the REST Store.
type Client struct {
	doer gateway.Doer
}

func NewClient(doer gateway.Doer) *Client {
	return &Client{doer: doer}
}

func (c *Client) Save(ctx context.Context, d Draft) (Record, error) {
	var rec Record
	req, err := gateway.JSONRequest(http.MethodPost, saveDraftPath, d)
	if err != nil {
		return rec, err
	}
	if _, err := gateway.Call(ctx, c.doer, req, &rec); err != nil {
		return rec, err
	}
	return rec, nil
}

func (c *Client) Latest(ctx context.Context, problemID int64) (Record, error) {
	var rec Record
	req := gateway.Request{
		Method: http.MethodGet,
		Path:   latestDraftPath,
		Query:  url.Values{"problem_id": {strconv.FormatInt(problemID, 10)}},
	}
	if _, err := gateway.Call(ctx, c.doer, req, &rec); err != nil {
		if errors.Is(err, errors.NotFound) {
			return rec, errors.Newf(errors.DraftNotFound, "no draft for problem %d", problemID)
		}
		return rec, err
	}
	return rec, nil
}
