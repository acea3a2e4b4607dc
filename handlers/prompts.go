// ABOUTME: MCP prompt handlers for review and sync health workflows
// ABOUTME: Builds prompts from the current approval queue and recent sync passes
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/fieldsync/approval"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type PromptHandlers struct {
	service *approval.Service
	sync    *SyncHandlers
}

func NewPromptHandlers(service *approval.Service, sync *SyncHandlers) *PromptHandlers {
	return &PromptHandlers{service: service, sync: sync}
}

// Prompts lists the prompts for registration.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{Name: "review-pending", Description: "Walk through records waiting for approval"},
		{Name: "sync-health", Description: "Explain recent HubSpot sync passes and their failures"},
	}
}

// GetPrompt generates the prompt message based on the template
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	switch request.Params.Name {
	case "review-pending":
		return h.reviewPendingPrompt(ctx)
	case "sync-health":
		return h.syncHealthPrompt(ctx)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", request.Params.Name)
	}
}

func (h *PromptHandlers) reviewPendingPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	pending, err := h.service.ListPending(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending records: %w", err)
	}

	var promptText strings.Builder
	if pending.Len() == 0 {
		promptText.WriteString("There are no records waiting for approval. Confirm the queue is empty.\n")
	} else {
		promptText.WriteString(fmt.Sprintf("There are %d records waiting for approval:\n\n", pending.Len()))
		for _, item := range PendingItems(pending) {
			promptText.WriteString(fmt.Sprintf("- [%s] %s (%s, id %s)\n", item.Kind, item.Title, item.Date, item.ID))
		}
		promptText.WriteString("\nFor each record, recommend approve or reject. Give a short reason for every rejection.")
		promptText.WriteString("\nUse approve_record and reject_record once the user agrees.")
	}

	return userPrompt("Pending approval review", promptText.String()), nil
}

func (h *PromptHandlers) syncHealthPrompt(ctx context.Context) (*mcp.GetPromptResult, error) {
	status, err := h.sync.status(ctx, 20)
	if err != nil {
		return nil, err
	}

	var promptText strings.Builder
	promptText.WriteString("Here is the current HubSpot sync state:\n\n")
	for _, s := range status.Services {
		promptText.WriteString(fmt.Sprintf("Service %s: %s", s.Service, s.Status))
		if s.LastSyncTime != "" {
			promptText.WriteString(fmt.Sprintf(", last synced %s", s.LastSyncTime))
		}
		if s.ErrorMessage != "" {
			promptText.WriteString(fmt.Sprintf(", error: %s", s.ErrorMessage))
		}
		promptText.WriteString("\n")
	}

	if len(status.Runs) > 0 {
		promptText.WriteString("\nRecent passes:\n")
		for _, r := range status.Runs {
			promptText.WriteString(fmt.Sprintf("- %s %s at %s: fetched %d, created %d, updated %d, skipped %d, failed %d\n",
				r.Direction, r.Entity, r.StartedAt, r.Fetched, r.Created, r.Updated, r.Skipped, r.Failed))
		}
	}

	promptText.WriteString("\nSummarize whether sync is healthy. Point out failing services and passes with failures,")
	promptText.WriteString(" and suggest whether a sync_push with only_retry_association would help.")

	return userPrompt("Sync health", promptText.String()), nil
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: text},
			},
		},
	}
}
