package sourcesystem

import "encoding/json"

// DefaultTargetKind is used when the bundle does not name the kind of the
// reviewed record.
const DefaultTargetKind = "triage_result"

const (
	pathCreateReview   = "/v1/reviews/create"
	pathScenarioBundle = "/scenarios/bundle"
)

type CreateReviewRequest struct {
	UserID            string `json:"user_id"`
	ScenarioID        string `json:"scenario_id"`
	TargetKind        string `json:"target_kind"`
	TargetID          string `json:"target_id"`
	AnnotationJSON    any    `json:"annotation_json"`
	AuthorID          string `json:"author_id,omitempty"`
	OverrideJSON      any    `json:"override_json,omitempty"`
	IsActive          bool   `json:"is_active"`
	SupersedePrevious bool   `json:"supersede_previous"`
}

type CreateReviewResponse struct {
	ReviewID string `json:"review_id"`
	ID       string `json:"id"`
	// Success is only checked when the source system sends it.
	Success *bool  `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// StoredID is the id the source system gave the review, if any.
func (r *CreateReviewResponse) StoredID() string {
	if r.ReviewID != "" {
		return r.ReviewID
	}
	return r.ID
}

type ScenarioBundleRequest struct {
	ScenarioID     string `json:"scenario_id"`
	IncludeReviews bool   `json:"include_reviews"`
}

// Bundle is the raw scenario aggregate. Only the triage node is interpreted.
type Bundle map[string]json.RawMessage

// Target identifies the record a review annotates.
type Target struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}
