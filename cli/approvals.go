// ABOUTME: Approval CLI commands
// ABOUTME: Approves, rejects or reopens a task, visit or submission and lists the review queue
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/handlers"
)

// ApprovalCommand runs approve, reject or reopen: <kind> <id> [--reason text].
func ApprovalCommand(app *App, action approval.Action, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fieldsync %s <task|visit|submission> <id> [--reason text]", action)
	}

	fs := flag.NewFlagSet(string(action), flag.ExitOnError)
	reason := fs.String("reason", "", "Rejection reason (required for reject)")
	_ = fs.Parse(args[2:])

	entity, err := approval.ParseEntity(args[0])
	if err != nil {
		return err
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	ctx := context.Background()
	actor, err := app.Actor(ctx)
	if err != nil {
		return err
	}

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	switch action {
	case approval.ActionApprove:
		_, err = services.Approvals.Approve(ctx, entity, id, actor)
	case approval.ActionReject:
		_, err = services.Approvals.Reject(ctx, entity, id, actor, *reason)
	case approval.ActionReopen:
		_, err = services.Approvals.Reopen(ctx, entity, id, actor)
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if approval.IsNotFound(err) {
		return fmt.Errorf("%s %s not found", entity, id)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.Out, "✓ %s %s: %s\n", entity, shortID(id), pastTense(action))
	return nil
}

// PendingCommand prints the review queue.
func PendingCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results per kind")
	_ = fs.Parse(args)

	ctx := context.Background()
	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	pending, err := services.Approvals.ListPending(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to list pending records: %w", err)
	}
	if pending.Len() == 0 {
		_, _ = fmt.Fprintln(app.Out, "Nothing waiting for review")
		return nil
	}

	w := newTable(app.Out, "KIND", "TITLE", "DATE", "ID")
	for _, item := range handlers.PendingItems(pending) {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Kind, item.Title, item.Date, item.ID)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d pending\n", pending.Len())
	return nil
}

func pastTense(action approval.Action) string {
	switch action {
	case approval.ActionApprove:
		return "approved"
	case approval.ActionReject:
		return "rejected"
	case approval.ActionReopen:
		return "reopened"
	}
	return string(action)
}
