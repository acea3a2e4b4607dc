// ABOUTME: Assembles the fieldsync MCP server
// ABOUTME: Registers sync and approval tools, read-only resources and review prompts
package handlers

import (
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server exposing fieldsync over the given services.
func NewServer(version string, syncer Syncer, service *approval.Service, store *db.Store, importActor string) *mcp.Server {
	syncHandlers := NewSyncHandlers(syncer, store, importActor)
	approvalHandlers := NewApprovalHandlers(service, store)
	resourceHandlers := NewResourceHandlers(service, store, syncHandlers)
	promptHandlers := NewPromptHandlers(service, syncHandlers)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "fieldsync",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_pull",
		Description: "Import tasks and/or contacts from HubSpot without creating duplicates",
	}, syncHandlers.SyncPull)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_push",
		Description: "Push approved tasks and sales submissions to HubSpot, retrying failed associations",
	}, syncHandlers.SyncPush)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show per-service sync state and the most recent sync passes",
	}, syncHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "approve_record",
		Description: "Approve a pending task, visit target or sales submission",
	}, approvalHandlers.ApproveRecord)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reject_record",
		Description: "Reject a pending task, visit target or sales submission with a reason",
	}, approvalHandlers.RejectRecord)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reopen_record",
		Description: "Send an approved or rejected record back to pending",
	}, approvalHandlers.ReopenRecord)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pending",
		Description: "List tasks, visit targets and sales submissions waiting for approval",
	}, approvalHandlers.ListPending)

	for _, r := range resourceHandlers.Resources() {
		server.AddResource(r, resourceHandlers.ReadResource)
	}
	server.AddResourceTemplate(resourceHandlers.TaskTemplate(), resourceHandlers.ReadResource)

	for _, p := range promptHandlers.Prompts() {
		server.AddPrompt(p, promptHandlers.GetPrompt)
	}

	return server
}
