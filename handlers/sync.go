// ABOUTME: Sync MCP tool handlers
// ABOUTME: Implements sync_pull, sync_push and sync_status over the reconciliation engine
package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Syncer runs reconciliation passes. *sync.Engine implements it.
type Syncer interface {
	PullTasks(ctx context.Context, filter sync.PullFilter, actor models.Actor) (sync.PullResult, error)
	PullContacts(ctx context.Context, filter sync.PullFilter, actor models.Actor) (sync.PullResult, error)
	PushTasks(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	PushSubmissions(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	Status(ctx context.Context, runs int) ([]models.SyncState, []models.SyncRun, error)
}

var _ Syncer = (*sync.Engine)(nil)

type SyncHandlers struct {
	syncer      Syncer
	store       *db.Store
	importActor string
}

// NewSyncHandlers builds the sync tools. importActor is the email used when a
// pull request names no actor.
func NewSyncHandlers(syncer Syncer, store *db.Store, importActor string) *SyncHandlers {
	return &SyncHandlers{syncer: syncer, store: store, importActor: importActor}
}

type SyncPullInput struct {
	Entity     string `json:"entity,omitempty" jsonschema:"What to pull: tasks, contacts or all (default tasks)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum records per pass (default and maximum 100)"`
	From       string `json:"from,omitempty" jsonschema:"Only records modified at or after this time (RFC3339)"`
	To         string `json:"to,omitempty" jsonschema:"Only records modified at or before this time (RFC3339)"`
	ActorEmail string `json:"actor_email,omitempty" jsonschema:"Email of the user the import runs as (defaults to the configured import actor)"`
}

type SyncPullOutput struct {
	Tasks    *sync.PullResult `json:"tasks,omitempty"`
	Contacts *sync.PullResult `json:"contacts,omitempty"`
}

func (h *SyncHandlers) SyncPull(ctx context.Context, _ *mcp.CallToolRequest, input SyncPullInput) (*mcp.CallToolResult, SyncPullOutput, error) {
	email := input.ActorEmail
	if email == "" {
		email = h.importActor
	}
	actor, err := resolveActor(ctx, h.store, email)
	if err != nil {
		return nil, SyncPullOutput{}, err
	}

	filter := sync.PullFilter{Limit: input.Limit}
	if filter.From, err = parseOptionalTime("from", input.From); err != nil {
		return nil, SyncPullOutput{}, err
	}
	if filter.To, err = parseOptionalTime("to", input.To); err != nil {
		return nil, SyncPullOutput{}, err
	}

	var out SyncPullOutput
	entity := strings.ToLower(input.Entity)
	if entity == "" {
		entity = "tasks"
	}
	if entity != "tasks" && entity != "contacts" && entity != "all" {
		return nil, SyncPullOutput{}, fmt.Errorf("invalid entity: %s (valid: tasks, contacts, all)", input.Entity)
	}

	if entity == "contacts" || entity == "all" {
		result, err := h.syncer.PullContacts(ctx, filter, actor)
		if err != nil {
			return nil, SyncPullOutput{}, fmt.Errorf("contact pull failed: %w", err)
		}
		out.Contacts = &result
	}
	if entity == "tasks" || entity == "all" {
		result, err := h.syncer.PullTasks(ctx, filter, actor)
		if err != nil {
			return nil, SyncPullOutput{}, fmt.Errorf("task pull failed: %w", err)
		}
		out.Tasks = &result
	}

	return nil, out, nil
}

type SyncPushInput struct {
	Entity                 string `json:"entity,omitempty" jsonschema:"What to push: tasks, submissions or all (default all)"`
	OnlyMissingExternalRef bool   `json:"only_missing_external_ref,omitempty" jsonschema:"Only approved records never created in HubSpot"`
	OnlyRetryAssociation   bool   `json:"only_retry_association,omitempty" jsonschema:"Only records whose last push failed to associate"`
	Limit                  int    `json:"limit,omitempty" jsonschema:"Maximum records per pass (default and maximum 100)"`
}

type PushFailureOutput struct {
	RecordID   string `json:"record_id"`
	ExternalID string `json:"external_id,omitempty"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

type PushResultOutput struct {
	Attempted int                 `json:"attempted"`
	Synced    int                 `json:"synced"`
	Partial   int                 `json:"partial"`
	Failed    []PushFailureOutput `json:"failed"`
}

type SyncPushOutput struct {
	Tasks       *PushResultOutput `json:"tasks,omitempty"`
	Submissions *PushResultOutput `json:"submissions,omitempty"`
}

func (h *SyncHandlers) SyncPush(ctx context.Context, _ *mcp.CallToolRequest, input SyncPushInput) (*mcp.CallToolResult, SyncPushOutput, error) {
	filter := sync.PushFilter{
		OnlyMissingExternalRef: input.OnlyMissingExternalRef,
		OnlyRetryAssociation:   input.OnlyRetryAssociation,
		Limit:                  input.Limit,
	}

	entity := strings.ToLower(input.Entity)
	if entity == "" {
		entity = "all"
	}
	if entity != "tasks" && entity != "submissions" && entity != "all" {
		return nil, SyncPushOutput{}, fmt.Errorf("invalid entity: %s (valid: tasks, submissions, all)", input.Entity)
	}

	var out SyncPushOutput
	if entity == "tasks" || entity == "all" {
		result, err := h.syncer.PushTasks(ctx, filter)
		if err != nil {
			return nil, SyncPushOutput{}, fmt.Errorf("task push failed: %w", err)
		}
		out.Tasks = pushResultToOutput(result)
	}
	if entity == "submissions" || entity == "all" {
		result, err := h.syncer.PushSubmissions(ctx, filter)
		if err != nil {
			return nil, SyncPushOutput{}, fmt.Errorf("submission push failed: %w", err)
		}
		out.Submissions = pushResultToOutput(result)
	}

	return nil, out, nil
}

type SyncStatusInput struct {
	Runs int `json:"runs,omitempty" jsonschema:"How many recent passes to include (default 10)"`
}

type SyncStateOutput struct {
	Service      string `json:"service"`
	Status       string `json:"status"`
	LastSyncTime string `json:"last_sync_time,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type SyncRunOutput struct {
	ID         string `json:"id"`
	Direction  string `json:"direction"`
	Entity     string `json:"entity"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Fetched    int    `json:"fetched"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

type SyncStatusOutput struct {
	Services []SyncStateOutput `json:"services"`
	Runs     []SyncRunOutput   `json:"runs"`
}

func (h *SyncHandlers) SyncStatus(ctx context.Context, _ *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	runs := input.Runs
	if runs <= 0 {
		runs = 10
	}

	out, err := h.status(ctx, runs)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}
	return nil, out, nil
}

func (h *SyncHandlers) status(ctx context.Context, runs int) (SyncStatusOutput, error) {
	states, recent, err := h.syncer.Status(ctx, runs)
	if err != nil {
		return SyncStatusOutput{}, fmt.Errorf("failed to read sync status: %w", err)
	}

	out := SyncStatusOutput{
		Services: make([]SyncStateOutput, len(states)),
		Runs:     make([]SyncRunOutput, len(recent)),
	}
	for i, s := range states {
		out.Services[i] = SyncStateOutput{
			Service:      s.Service,
			Status:       s.Status,
			LastSyncTime: formatOptionalTime(s.LastSyncTime),
			ErrorMessage: s.ErrorMessage,
		}
	}
	for i, r := range recent {
		out.Runs[i] = SyncRunOutput{
			ID:         r.ID,
			Direction:  r.Direction,
			Entity:     r.Entity,
			StartedAt:  r.StartedAt.Format(time.RFC3339),
			FinishedAt: formatOptionalTime(r.FinishedAt),
			Fetched:    r.Fetched,
			Created:    r.Created,
			Updated:    r.Updated,
			Skipped:    r.Skipped,
			Failed:     r.Failed,
		}
	}

	return out, nil
}

func pushResultToOutput(r sync.PushResult) *PushResultOutput {
	out := &PushResultOutput{
		Attempted: r.Attempted,
		Synced:    r.Synced,
		Partial:   r.Partial,
		Failed:    make([]PushFailureOutput, len(r.Failed)),
	}
	for i, f := range r.Failed {
		out.Failed[i] = PushFailureOutput{
			RecordID:   f.RecordID.String(),
			ExternalID: f.ExternalID,
			Stage:      f.Stage,
			Error:      f.Error,
		}
	}
	return out
}

// resolveActor looks up the acting user by email. Actors are trusted as named.
func resolveActor(ctx context.Context, store *db.Store, email string) (models.Actor, error) {
	if strings.TrimSpace(email) == "" {
		return models.Actor{}, fmt.Errorf("actor_email is required")
	}
	actor, err := store.Actors.FindByEmail(ctx, email)
	if err != nil {
		return models.Actor{}, fmt.Errorf("unknown actor %s: %w", email, err)
	}
	return *actor, nil
}

func parseOptionalTime(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s (use RFC3339): %w", field, err)
	}
	return &t, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
