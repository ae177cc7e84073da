// Package platform talks to the review-assignment platform that owns the
// reviewer roster and notifies reviewers of new tasks.
package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/860844175/review-system/internal/reviewer"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/httpjson"
)

const gatewayName = "platform"

type Client struct {
	http *httpjson.Client
	kind string
}

var _ reviewer.Directory = (*Client)(nil)

// NewClient authenticates with the Token header. opts tune timeout and
// retries of the underlying httpjson client.
func NewClient(baseURL, apiKey, kind string, opts ...httpjson.Option) *Client {
	if kind == "" {
		kind = DefaultTaskKind
	}
	opts = append([]httpjson.Option{httpjson.WithHeader("Token", apiKey)}, opts...)
	return &Client{
		http: httpjson.New(gatewayName, baseURL, opts...),
		kind: kind,
	}
}

// Kind is the review kind used when a RegisterTaskRequest leaves it empty.
func (c *Client) Kind() string {
	return c.kind
}

func (c *Client) write(ctx context.Context, op, path string, body any) (*Response, error) {
	var out envelope[json.RawMessage]
	err := c.http.Post(ctx, httpjson.Call{Operation: op, Path: path, Body: body, Out: &out, Accept: out.accept})
	if err != nil {
		return nil, err
	}
	return &Response{Message: out.Message, Data: out.Data}, nil
}

// RegisterTask announces a review task and its page URL. Registering the
// same id twice is idempotent on the platform side.
func (c *Client) RegisterTask(ctx context.Context, req RegisterTaskRequest) (*Response, error) {
	if req.Kind == "" {
		req.Kind = c.kind
	}
	return c.write(ctx, "register_task", pathRegisterTask, req)
}

// SubmitTask marks a task as reviewed.
func (c *Client) SubmitTask(ctx context.Context, taskID string) (*Response, error) {
	return c.write(ctx, "submit_task", pathSubmitTask, SubmitTaskRequest{ID: taskID})
}

func (c *Client) ListReviewers(ctx context.Context, hospitalID string) ([]*reviewer.Reviewer, error) {
	var out reviewerList
	err := c.http.Post(ctx, httpjson.Call{
		Operation: "list_reviewers",
		Path:      pathListReviewers,
		Body:      ListReviewersRequest{HospitalID: hospitalID},
		Out:       &out,
		Accept:    out.accept,
	})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) GetReviewer(ctx context.Context, id string) (*reviewer.Reviewer, error) {
	var out reviewerList
	err := c.http.Post(ctx, httpjson.Call{
		Operation: "get_reviewer",
		Path:      pathGetReviewer,
		Body:      GetReviewerRequest{ID: id},
		Out:       &out,
		Accept:    out.accept,
	})
	if err != nil {
		return nil, err
	}
	if len(out.Data) == 0 || out.Data[0] == nil {
		return nil, cerr.NewError(cerr.NotFound, "reviewer not found", fmt.Errorf("%w: %s", reviewer.ErrNotFound, id))
	}
	return out.Data[0], nil
}

func (c *Client) ListHospitals(ctx context.Context) ([]Hospital, error) {
	var out envelope[[]Hospital]
	err := c.http.Post(ctx, httpjson.Call{
		Operation: "list_hospitals",
		Path:      pathListHospitals,
		Body:      struct{}{},
		Out:       &out,
		Accept:    out.accept,
	})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
