// ABOUTME: MCP resource handlers for exposing field-sales data
// ABOUTME: Provides read-only access to pending approvals, sync status, tasks and sales targets via URI
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "fieldsync://"

type ResourceHandlers struct {
	service *approval.Service
	store   *db.Store
	sync    *SyncHandlers
}

func NewResourceHandlers(service *approval.Service, store *db.Store, sync *SyncHandlers) *ResourceHandlers {
	return &ResourceHandlers{service: service, store: store, sync: sync}
}

// Resources lists the fixed resources for registration.
func (h *ResourceHandlers) Resources() []*mcp.Resource {
	return []*mcp.Resource{
		{URI: resourceScheme + "pending", Name: "pending", Description: "Records waiting for approval", MIMEType: "application/json"},
		{URI: resourceScheme + "sync/status", Name: "sync-status", Description: "Per-service sync state and recent passes", MIMEType: "application/json"},
		{URI: resourceScheme + "targets", Name: "targets", Description: "Active sales targets and their progress", MIMEType: "application/json"},
		{URI: resourceScheme + "tasks/summary", Name: "task-summary", Description: "How many owners, customers and companies the tasks in each approval state touch", MIMEType: "application/json"},
	}
}

// TaskTemplate is the resource template for single tasks.
func (h *ResourceHandlers) TaskTemplate() *mcp.ResourceTemplate {
	return &mcp.ResourceTemplate{
		URITemplate: resourceScheme + "tasks/{id}",
		Name:        "task",
		Description: "A single task with its approval and sync state",
		MIMEType:    "application/json",
	}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "pending":
		pending, err := h.service.ListPending(ctx, 1000)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch pending records: %w", err)
		}
		return jsonResource(uri, PendingItems(pending))

	case "sync":
		status, err := h.sync.status(ctx, 20)
		if err != nil {
			return nil, err
		}
		return jsonResource(uri, status)

	case "targets":
		targets, err := h.store.Targets.List(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch targets: %w", err)
		}
		return jsonResource(uri, targets)

	case "tasks":
		if len(parts) < 2 || parts[1] == "" {
			return nil, fmt.Errorf("task resource needs an id")
		}
		if parts[1] == "summary" {
			summary, err := h.taskSummary(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, summary)
		}
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid task ID: %w", err)
		}
		task, err := h.store.Tasks.Get(ctx, id)
		if err != nil {
			if approval.IsNotFound(err) {
				return nil, fmt.Errorf("resource not found: %s", uri)
			}
			return nil, fmt.Errorf("failed to fetch task: %w", err)
		}
		return jsonResource(uri, task)

	default:
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
}

// TaskSummary counts the distinct people and accounts behind tasks, per approval status.
type TaskSummary struct {
	ApprovalStatus string `json:"approval_status"`
	Owners         int    `json:"owners"`
	Customers      int    `json:"customers"`
	Companies      int    `json:"companies"`
}

func (h *ResourceHandlers) taskSummary(ctx context.Context) ([]TaskSummary, error) {
	statuses := []models.ApprovalStatus{models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected}
	summary := make([]TaskSummary, 0, len(statuses))

	for _, status := range statuses {
		filter := db.TaskFilter{ApprovalStatus: status}
		row := TaskSummary{ApprovalStatus: string(status)}

		counts := []struct {
			field string
			dst   *int
		}{
			{"owner_id", &row.Owners},
			{"customer_id", &row.Customers},
			{"external_company_id", &row.Companies},
		}
		for _, c := range counts {
			n, err := h.store.Tasks.CountDistinct(ctx, c.field, filter)
			if err != nil {
				return nil, fmt.Errorf("failed to summarize %s tasks: %w", status, err)
			}
			*c.dst = n
		}

		summary = append(summary, row)
	}

	return summary, nil
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}
