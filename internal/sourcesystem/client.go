// Package sourcesystem talks to the clinical system of record that stores
// the final review annotations.
package sourcesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/httpjson"
	"github.com/860844175/review-system/pkg/retry"
)

const gatewayName = "source_system"

var ErrTargetNotFound = errors.New("review target not found in scenario bundle")

type Client struct {
	writes  *httpjson.Client
	lookups *httpjson.Client
}

// NewClient sends X-API-Key only when apiKey is set. Lookups are tried once
// with lookupTimeout since callers have a fallback.
func NewClient(baseURL, apiKey string, lookupTimeout time.Duration, opts ...httpjson.Option) *Client {
	base := append([]httpjson.Option{httpjson.WithHeader("X-API-Key", apiKey)}, opts...)
	lookup := append(append([]httpjson.Option{}, base...),
		httpjson.WithTimeout(lookupTimeout),
		httpjson.WithRetry(retry.Policy{MaxAttempts: 1}),
	)
	return &Client{
		writes:  httpjson.New(gatewayName, baseURL, base...),
		lookups: httpjson.New(gatewayName, baseURL, lookup...),
	}
}

// CreateReview stores a review annotation. Any 2xx reply counts as stored
// unless the body carries success=false.
func (c *Client) CreateReview(ctx context.Context, req CreateReviewRequest) (*CreateReviewResponse, error) {
	var out CreateReviewResponse
	err := c.writes.Post(ctx, httpjson.Call{
		Operation: "create_review",
		Path:      pathCreateReview,
		Body:      req,
		Out:       &out,
		Accept: func() error {
			if out.Success != nil && !*out.Success {
				return fmt.Errorf("success=false: %s", out.Message)
			}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if out.StoredID() == "" {
		slog.WarnContext(ctx, "source system accepted review without an id",
			"user_id", req.UserID, "scenario_id", req.ScenarioID)
	}
	return &out, nil
}

func (c *Client) ScenarioBundle(ctx context.Context, scenarioID string) (Bundle, error) {
	var out Bundle
	err := c.lookups.Post(ctx, httpjson.Call{
		Operation: "scenario_bundle",
		Path:      pathScenarioBundle,
		Body:      ScenarioBundleRequest{ScenarioID: scenarioID, IncludeReviews: true},
		Out:       &out,
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveTarget finds the triage record of a scenario.
func (c *Client) ResolveTarget(ctx context.Context, scenarioID string) (Target, error) {
	bundle, err := c.ScenarioBundle(ctx, scenarioID)
	if err != nil {
		return Target{}, err
	}
	t, ok := bundle.Triage()
	if !ok {
		return Target{}, cerr.NewError(cerr.NotFound, "review target not found", fmt.Errorf("%w: scenario %s", ErrTargetNotFound, scenarioID))
	}
	return t, nil
}

// triagePaths are the nestings the triage node has been seen under.
var triagePaths = [][]string{
	{"bundle", "data", "triage"},
	{"bundle", "triage"},
	{"data", "triage"},
	{"triage"},
}

// Triage extracts the triage target. The first path holding an object with
// a non-empty id wins.
func (b Bundle) Triage() (Target, bool) {
	for _, path := range triagePaths {
		raw, ok := lookupPath(b, path)
		if !ok {
			continue
		}
		var node struct {
			ID   json.RawMessage `json:"id"`
			Kind string          `json:"kind"`
		}
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		id := scalarString(node.ID)
		if id == "" {
			continue
		}
		kind := node.Kind
		if kind == "" {
			kind = DefaultTargetKind
		}
		return Target{Kind: kind, ID: id}, true
	}
	return Target{}, false
}

func lookupPath(b Bundle, path []string) (json.RawMessage, bool) {
	raw, ok := b[path[0]]
	for _, key := range path[1:] {
		if !ok {
			return nil, false
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, false
		}
		raw, ok = obj[key]
	}
	return raw, ok
}

// scalarString accepts ids sent as strings or numbers.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
