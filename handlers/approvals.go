// ABOUTME: Approval MCP tool handlers
// ABOUTME: Implements approve_record, reject_record, reopen_record and list_pending
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type ApprovalHandlers struct {
	service *approval.Service
	store   *db.Store
}

func NewApprovalHandlers(service *approval.Service, store *db.Store) *ApprovalHandlers {
	return &ApprovalHandlers{service: service, store: store}
}

type ApprovalInput struct {
	Kind       string `json:"kind" jsonschema:"Record kind: task, visit or submission (required)"`
	ID         string `json:"id" jsonschema:"Record ID (required)"`
	ActorEmail string `json:"actor_email" jsonschema:"Email of the manager or admin acting (required)"`
	Reason     string `json:"reason,omitempty" jsonschema:"Why the record is rejected (required for reject_record)"`
}

type ApprovalOutput struct {
	Kind            string `json:"kind"`
	ID              string `json:"id"`
	ApprovalStatus  string `json:"approval_status"`
	ApprovedBy      string `json:"approved_by,omitempty"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	RejectedBy      string `json:"rejected_by,omitempty"`
	RejectedAt      string `json:"rejected_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

func (h *ApprovalHandlers) ApproveRecord(ctx context.Context, _ *mcp.CallToolRequest, input ApprovalInput) (*mcp.CallToolResult, ApprovalOutput, error) {
	return h.transition(ctx, input, func(entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error) {
		return h.service.Approve(ctx, entity, id, actor)
	})
}

func (h *ApprovalHandlers) RejectRecord(ctx context.Context, _ *mcp.CallToolRequest, input ApprovalInput) (*mcp.CallToolResult, ApprovalOutput, error) {
	return h.transition(ctx, input, func(entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error) {
		return h.service.Reject(ctx, entity, id, actor, input.Reason)
	})
}

func (h *ApprovalHandlers) ReopenRecord(ctx context.Context, _ *mcp.CallToolRequest, input ApprovalInput) (*mcp.CallToolResult, ApprovalOutput, error) {
	return h.transition(ctx, input, func(entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error) {
		return h.service.Reopen(ctx, entity, id, actor)
	})
}

type transitionFunc func(entity db.Entity, id uuid.UUID, actor models.Actor) (models.Approval, error)

func (h *ApprovalHandlers) transition(ctx context.Context, input ApprovalInput, fn transitionFunc) (*mcp.CallToolResult, ApprovalOutput, error) {
	entity, err := approval.ParseEntity(input.Kind)
	if err != nil {
		return nil, ApprovalOutput{}, err
	}
	if input.ID == "" {
		return nil, ApprovalOutput{}, fmt.Errorf("id is required")
	}
	id, err := uuid.Parse(input.ID)
	if err != nil {
		return nil, ApprovalOutput{}, fmt.Errorf("invalid id: %w", err)
	}
	actor, err := resolveActor(ctx, h.store, input.ActorEmail)
	if err != nil {
		return nil, ApprovalOutput{}, err
	}

	a, err := fn(entity, id, actor)
	if err != nil {
		if approval.IsNotFound(err) {
			return nil, ApprovalOutput{}, fmt.Errorf("%s %s not found", entity, id)
		}
		return nil, ApprovalOutput{}, err
	}

	return nil, approvalToOutput(entity, id, a), nil
}

type ListPendingInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum records of each kind (default 50)"`
}

type PendingItemOutput struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	OwnerID     string `json:"owner_id"`
	Date        string `json:"date"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type ListPendingOutput struct {
	Items []PendingItemOutput `json:"items"`
	Count int                 `json:"count"`
}

func (h *ApprovalHandlers) ListPending(ctx context.Context, _ *mcp.CallToolRequest, input ListPendingInput) (*mcp.CallToolResult, ListPendingOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	pending, err := h.service.ListPending(ctx, limit)
	if err != nil {
		return nil, ListPendingOutput{}, fmt.Errorf("failed to list pending records: %w", err)
	}

	items := PendingItems(pending)
	return nil, ListPendingOutput{Items: items, Count: len(items)}, nil
}

// PendingItems flattens a pending listing into one row per record.
func PendingItems(p approval.Pending) []PendingItemOutput {
	items := make([]PendingItemOutput, 0, p.Len())
	for _, t := range p.Tasks {
		items = append(items, PendingItemOutput{
			Kind:    string(db.EntityTask),
			ID:      t.ID.String(),
			Title:   t.Title,
			OwnerID: t.OwnerID.String(),
			Date:    t.DueDate.Format("2006-01-02"),
		})
	}
	for _, v := range p.Visits {
		items = append(items, PendingItemOutput{
			Kind:    string(db.EntityVisit),
			ID:      v.ID.String(),
			Title:   v.Title,
			OwnerID: v.OwnerID.String(),
			Date:    v.VisitDate.Format("2006-01-02"),
		})
	}
	for _, s := range p.Submissions {
		title := s.Description
		if title == "" {
			title = fmt.Sprintf("Sale of %s %s", formatCents(s.AmountCents), s.Currency)
		}
		items = append(items, PendingItemOutput{
			Kind:        string(db.EntitySubmission),
			ID:          s.ID.String(),
			Title:       title,
			OwnerID:     s.OwnerID.String(),
			Date:        s.SalesDate.Format("2006-01-02"),
			AmountCents: s.AmountCents,
			Currency:    s.Currency,
		})
	}
	return items
}

func approvalToOutput(entity db.Entity, id uuid.UUID, a models.Approval) ApprovalOutput {
	out := ApprovalOutput{
		Kind:            string(entity),
		ID:              id.String(),
		ApprovalStatus:  string(a.Status),
		ApprovedAt:      formatOptionalTime(a.ApprovedAt),
		RejectedAt:      formatOptionalTime(a.RejectedAt),
		RejectionReason: a.RejectionReason,
	}
	if a.ApprovedBy != nil {
		out.ApprovedBy = a.ApprovedBy.String()
	}
	if a.RejectedBy != nil {
		out.RejectedBy = a.RejectedBy.String()
	}
	return out
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
