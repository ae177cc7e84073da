// Package review runs the two review workflows: creating and assigning a
// task, and accepting a submitted review while reconciling it with the
// platform and the source system.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/860844175/review-system/internal/assignment"
	"github.com/860844175/review-system/internal/eventbus"
	"github.com/860844175/review-system/internal/platform"
	"github.com/860844175/review-system/internal/sourcesystem"
	"github.com/860844175/review-system/internal/task"
	"github.com/860844175/review-system/pkg/cerr"
	"github.com/860844175/review-system/pkg/clog"
	"github.com/860844175/review-system/pkg/panicerr"
)

const reviewPagePath = "/review/triage"

type Assigner interface {
	Assign(ctx context.Context, req assignment.Request) (*assignment.Result, error)
}

type Platform interface {
	RegisterTask(ctx context.Context, req platform.RegisterTaskRequest) (*platform.Response, error)
	SubmitTask(ctx context.Context, taskID string) (*platform.Response, error)
}

type SourceSystem interface {
	CreateReview(ctx context.Context, req sourcesystem.CreateReviewRequest) (*sourcesystem.CreateReviewResponse, error)
}

// TargetResolver finds the record a scenario's review annotates.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, scenarioID string) (sourcesystem.Target, error)
}

type Dependencies struct {
	Tasks        task.Repository
	Assigner     Assigner
	Platform     Platform
	SourceSystem SourceSystem
	// Resolver is optional; without it the scenario id is the target.
	Resolver TargetResolver
	Bus      *eventbus.Bus
}

type Service struct {
	tasks    task.Repository
	assigner Assigner
	platform Platform
	source   SourceSystem
	resolver TargetResolver
	bus      *eventbus.Bus
	baseURL  string
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the workflows. baseURL is the origin of the review page.
func NewService(deps Dependencies, baseURL string, opts ...Option) *Service {
	s := &Service{
		tasks:    deps.Tasks,
		assigner: deps.Assigner,
		platform: deps.Platform,
		source:   deps.SourceSystem,
		resolver: deps.Resolver,
		bus:      deps.Bus,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateRequest struct {
	UserID     string `json:"user_id"`
	ScenarioID string `json:"scenario_id"`
	HospitalID string `json:"hospital_id,omitempty"`
	Fixture    string `json:"fixture,omitempty"`
	Source     string `json:"source,omitempty"`
}

type CreateResult struct {
	TaskID           string `json:"task_id"`
	ReviewURL        string `json:"review_url"`
	PlatformSynced   bool   `json:"platform_synced"`
	DoctorID         string `json:"doctor_id,omitempty"`
	AssignmentReason string `json:"assignment_reason,omitempty"`
	// Reused is set when an existing live task was returned.
	Reused bool `json:"reused"`
	// AssignmentSkipped is set when the task was completed or assigned by
	// another request before the chosen reviewer could be recorded.
	AssignmentSkipped bool `json:"assignment_skipped,omitempty"`
}

// CreateReviewTask returns the live task of the pair, creating it if needed,
// assigns a reviewer when it has none and registers it with the platform.
// Assignment and registration failures are reported in the result, not as
// errors.
func (s *Service) CreateReviewTask(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := requireFields(field{"user_id", req.UserID}, field{"scenario_id", req.ScenarioID}); err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		source = task.SourceLive
	}

	t, created, err := s.tasks.EnsurePending(ctx, req.UserID, req.ScenarioID, req.Fixture, source)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	clog.AddTask(ctx, t.ID, t.UserID, t.ScenarioID)
	if created {
		s.bus.PublishNew(eventbus.TaskCreated, t.ID, "task created", map[string]string{
			"user_id":     t.UserID,
			"scenario_id": t.ScenarioID,
			"source":      t.Source,
		})
	} else {
		slog.InfoContext(ctx, "reusing live task", "status", t.EffectiveStatus())
	}

	result := &CreateResult{TaskID: t.ID, DoctorID: t.DoctorID, Reused: !created}
	assignedNow := false
	if t.DoctorID == "" && s.assigner != nil {
		res, err := s.assigner.Assign(ctx, assignment.Request{
			UserID:     t.UserID,
			ScenarioID: t.ScenarioID,
			TaskID:     t.ID,
			HospitalID: req.HospitalID,
		})
		if err != nil {
			slog.WarnContext(ctx, "assignment failed, continuing without reviewer", "error", err)
		} else {
			result.DoctorID = res.DoctorID
			result.AssignmentReason = res.AssignmentReason
			assignedNow = true
		}
	}
	result.ReviewURL = s.ReviewURL(t.ID, t.UserID, t.ScenarioID, result.DoctorID)

	reg := platform.RegisterTaskRequest{ID: t.ID, CustomerID: t.UserID, URL: result.ReviewURL}
	if result.DoctorID != "" {
		doctorID := result.DoctorID
		reg.DoctorID = &doctorID
	}
	if _, err := s.platform.RegisterTask(ctx, reg); err != nil {
		slog.WarnContext(ctx, "platform registration failed", "error", err)
		s.bus.PublishNew(eventbus.TaskSyncFailed, t.ID, "platform registration failed", map[string]string{
			"gateway": "platform",
			"error":   err.Error(),
		})
	} else {
		result.PlatformSynced = true
		s.bus.PublishNew(eventbus.TaskPlatformSynced, t.ID, "registered with platform", nil)
	}

	if assignedNow {
		now := s.now()
		var current *task.Task
		if _, err := s.tasks.Update(ctx, t.ID, func(t *task.Task) {
			if !t.CanAssign() {
				current = t.Clone()
				return
			}
			t.Assign(result.DoctorID, now)
		}); err != nil {
			return nil, fmt.Errorf("failed to persist assignment: %w", err)
		}
		if current != nil {
			// the task was completed or assigned while the reviewer was chosen
			slog.WarnContext(ctx, "task changed during assignment, keeping stored state",
				"status", current.EffectiveStatus(),
				"stored_doctor_id", current.DoctorID,
				"chosen_doctor_id", result.DoctorID,
			)
			result.AssignmentSkipped = true
			return result, nil
		}
		clog.AddAttribute(ctx, clog.DoctorIDAttributeKey, result.DoctorID)
		s.bus.PublishNew(eventbus.TaskAssigned, t.ID, result.AssignmentReason, map[string]string{
			"doctor_id": result.DoctorID,
		})
	}
	return result, nil
}

// ReviewURL is the page a reviewer opens for a task.
func (s *Service) ReviewURL(taskID, userID, scenarioID, doctorID string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString(reviewPagePath)
	b.WriteString("?task_id=" + url.QueryEscape(taskID))
	b.WriteString("&user_id=" + url.QueryEscape(userID))
	b.WriteString("&scenario_id=" + url.QueryEscape(scenarioID))
	if doctorID != "" {
		b.WriteString("&doctor_id=" + url.QueryEscape(doctorID))
	}
	return b.String()
}

type SubmitRequest struct {
	TaskID        string         `json:"task_id"`
	UserID        string         `json:"user_id"`
	ScenarioID    string         `json:"scenario_id"`
	Decision      map[string]any `json:"decision"`
	Modifications any            `json:"modifications"`
	// Override replaces parts of the original output when set.
	Override any `json:"override,omitempty"`
}

type SubmitResult struct {
	TaskID         string      `json:"task_id"`
	Status         task.Status `json:"status"`
	PlatformSynced bool        `json:"platform_synced"`
	SystemSynced   bool        `json:"system_synced"`
}

// SubmitReview accepts a review decision. The platform and the source system
// are notified concurrently and independently; their outcomes are reported
// as flags. The local task is marked completed either way.
func (s *Service) SubmitReview(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := requireFields(
		field{"task_id", req.TaskID},
		field{"user_id", req.UserID},
		field{"scenario_id", req.ScenarioID},
	); err != nil {
		return nil, err
	}
	clog.AddTask(ctx, req.TaskID, req.UserID, req.ScenarioID)
	now := s.now()

	var platformErr, sourceErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		platformErr = panicerr.Safe("platform submit", func() error {
			_, err := s.platform.SubmitTask(ctx, req.TaskID)
			return err
		})()
	})
	wg.Go(func() {
		sourceErr = panicerr.Safe("source system push", func() error {
			return s.pushReview(ctx, req, now)
		})()
	})
	wg.Wait()

	result := &SubmitResult{
		TaskID:         req.TaskID,
		Status:         task.StatusCompleted,
		PlatformSynced: platformErr == nil,
		SystemSynced:   sourceErr == nil,
	}
	s.reportSync(ctx, req.TaskID, "platform", platformErr)
	s.reportSync(ctx, req.TaskID, "source_system", sourceErr)

	_, err := s.tasks.Update(ctx, req.TaskID, func(t *task.Task) { t.Complete(now) })
	switch {
	case cerr.IsCode(err, cerr.NotFound):
		slog.InfoContext(ctx, "submitted task is not in the local store")
	case err != nil:
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	s.bus.PublishNew(eventbus.TaskCompleted, req.TaskID, "review submitted", map[string]string{
		"platform_synced": fmt.Sprint(result.PlatformSynced),
		"system_synced":   fmt.Sprint(result.SystemSynced),
	})
	return result, nil
}

func (s *Service) reportSync(ctx context.Context, taskID, gateway string, err error) {
	if err == nil {
		if gateway == "platform" {
			s.bus.PublishNew(eventbus.TaskPlatformSynced, taskID, "submission sent to platform", nil)
		}
		return
	}
	slog.WarnContext(ctx, "review sync failed", "gateway", gateway, "error", err)
	s.bus.PublishNew(eventbus.TaskSyncFailed, taskID, "review sync failed", map[string]string{
		"gateway": gateway,
		"error":   err.Error(),
	})
}

func (s *Service) resolveTarget(ctx context.Context, scenarioID string) sourcesystem.Target {
	fallback := sourcesystem.Target{Kind: sourcesystem.DefaultTargetKind, ID: scenarioID}
	if s.resolver == nil {
		return fallback
	}
	t, err := s.resolver.ResolveTarget(ctx, scenarioID)
	if err != nil {
		slog.InfoContext(ctx, "review target lookup failed, using scenario id", "error", err)
		return fallback
	}
	return t
}

// authorID is the reviewer named in the decision, if any.
func authorID(decision map[string]any) string {
	for _, key := range []string{"reviewer_id", "author_id"} {
		switch v := decision[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func (s *Service) pushReview(ctx context.Context, req SubmitRequest, now time.Time) error {
	target := s.resolveTarget(ctx, req.ScenarioID)
	modifications := req.Modifications
	if modifications == nil {
		modifications = []any{}
	}
	decision := req.Decision
	if decision == nil {
		decision = map[string]any{}
	}
	_, err := s.source.CreateReview(ctx, sourcesystem.CreateReviewRequest{
		UserID:     req.UserID,
		ScenarioID: req.ScenarioID,
		TargetKind: target.Kind,
		TargetID:   target.ID,
		AnnotationJSON: map[string]any{
			"review_date":   now.UTC().Format(time.RFC3339),
			"task_id":       req.TaskID,
			"decision":      decision,
			"modifications": modifications,
		},
		AuthorID:          authorID(req.Decision),
		OverrideJSON:      req.Override,
		IsActive:          true,
		SupersedePrevious: true,
	})
	return err
}
