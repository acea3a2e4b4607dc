// ABOUTME: Task, visit and sales submission CLI commands
// ABOUTME: Drafts go through the approval service so reps' records wait for review
package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
)

// TasksAddCommand drafts a follow-up task.
func TasksAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("tasks add", flag.ExitOnError)
	title := fs.String("title", "", "Task title (required)")
	description := fs.String("description", "", "Description")
	taskType := fs.String("type", models.TaskTypeCall, "Type: call, visit, email, quote_follow_up, sample_feedback, order_check")
	priority := fs.String("priority", models.PriorityMedium, "Priority: low, medium, high, urgent")
	due := fs.String("due", "", "Due date, YYYY-MM-DD (default: today)")
	customer := fs.String("customer", "", "Customer id or email")
	_ = fs.Parse(args)

	if *title == "" {
		return fmt.Errorf("--title is required")
	}
	if !oneOf(*taskType, models.TaskTypeCall, models.TaskTypeVisit, models.TaskTypeEmail,
		models.TaskTypeQuoteFollowUp, models.TaskTypeSampleFeedback, models.TaskTypeOrderCheck) {
		return fmt.Errorf("invalid task type %q", *taskType)
	}
	if !oneOf(*priority, models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityUrgent) {
		return fmt.Errorf("invalid priority %q", *priority)
	}

	ctx := context.Background()
	actor, err := app.Actor(ctx)
	if err != nil {
		return err
	}

	task := &models.Task{
		Title:       *title,
		Description: *description,
		Type:        *taskType,
		Priority:    *priority,
	}
	if *due != "" {
		if task.DueDate, err = parseDate(*due); err != nil {
			return err
		}
	} else {
		task.DueDate = today()
	}
	if task.CustomerID, err = findCustomer(ctx, app, *customer); err != nil {
		return err
	}

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	if err := services.Approvals.CreateTask(ctx, task, actor); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Task created: %s (ID: %s, %s)\n", task.Title, task.ID, task.Approval.Status)
	return nil
}

// TasksListCommand lists tasks.
func TasksListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("tasks list", flag.ExitOnError)
	approvalStatus := fs.String("approval", "", "Filter by approval status: pending, approved, rejected")
	status := fs.String("status", "", "Filter by status: overdue, today, upcoming, completed")
	taskType := fs.String("type", "", "Filter by task type")
	mine := fs.Bool("mine", false, "Only tasks owned by the acting user")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	ctx := context.Background()
	filter := db.TaskFilter{
		ApprovalStatus: models.ApprovalStatus(*approvalStatus),
		Status:         *status,
		Type:           *taskType,
		Limit:          *limit,
	}
	if *mine {
		actor, err := app.Actor(ctx)
		if err != nil {
			return err
		}
		filter.OwnerID = &actor.ID
	}

	tasks, err := app.Store.Tasks.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No tasks found")
		return nil
	}

	w := newTable(app.Out, "TITLE", "TYPE", "PRIORITY", "DUE", "STATUS", "APPROVAL", "HUBSPOT", "ID")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Title, t.Type, t.Priority, t.DueDate.Local().Format("2006-01-02"), t.Status,
			t.Approval.Status, orDash(t.ExternalID), shortID(t.ID))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d task(s)\n", len(tasks))
	return nil
}

// VisitsAddCommand plans a customer visit.
func VisitsAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("visits add", flag.ExitOnError)
	title := fs.String("title", "", "Visit title (required)")
	date := fs.String("date", "", "Visit date, YYYY-MM-DD or RFC3339 (required)")
	customer := fs.String("customer", "", "Customer id or email")
	address := fs.String("address", "", "Address")
	notes := fs.String("notes", "", "Notes")
	lat := fs.Float64("lat", 0, "Latitude")
	lng := fs.Float64("lng", 0, "Longitude")
	_ = fs.Parse(args)

	if *title == "" || *date == "" {
		return fmt.Errorf("--title and --date are required")
	}

	ctx := context.Background()
	actor, err := app.Actor(ctx)
	if err != nil {
		return err
	}

	visit := &models.VisitTarget{
		Title:     *title,
		Status:    models.VisitStatusPending,
		Address:   *address,
		Notes:     *notes,
		Latitude:  *lat,
		Longitude: *lng,
	}
	if visit.VisitDate, err = parseDate(*date); err != nil {
		return err
	}
	if visit.CustomerID, err = findCustomer(ctx, app, *customer); err != nil {
		return err
	}

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	if err := services.Approvals.CreateVisit(ctx, visit, actor); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Visit planned: %s on %s (ID: %s, %s)\n",
		visit.Title, visit.VisitDate.Format("2006-01-02"), visit.ID, visit.Approval.Status)
	return nil
}

// VisitsListCommand lists visits.
func VisitsListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("visits list", flag.ExitOnError)
	approvalStatus := fs.String("approval", "", "Filter by approval status")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	visits, err := app.Store.Visits.List(context.Background(), models.ApprovalStatus(*approvalStatus), *limit)
	if err != nil {
		return fmt.Errorf("failed to list visits: %w", err)
	}
	if len(visits) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No visits found")
		return nil
	}

	w := newTable(app.Out, "TITLE", "DATE", "STATUS", "APPROVAL", "ADDRESS", "ID")
	for _, v := range visits {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Title, v.VisitDate.Local().Format("2006-01-02"), v.Status, v.Approval.Status, orDash(v.Address), shortID(v.ID))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d visit(s)\n", len(visits))
	return nil
}

// SubmissionsAddCommand reports a sale.
func SubmissionsAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("submissions add", flag.ExitOnError)
	amount := fs.String("amount", "", "Sale amount, e.g. 1250.50 (required)")
	currency := fs.String("currency", "USD", "ISO currency code")
	date := fs.String("date", "", "Sales date, YYYY-MM-DD (default: today)")
	customer := fs.String("customer", "", "Customer id or email")
	description := fs.String("description", "", "Description")
	_ = fs.Parse(args)

	if *amount == "" {
		return fmt.Errorf("--amount is required")
	}
	cents, err := parseAmount(*amount)
	if err != nil {
		return err
	}

	ctx := context.Background()
	actor, err := app.Actor(ctx)
	if err != nil {
		return err
	}

	sub := &models.SalesSubmission{
		AmountCents: cents,
		Currency:    strings.ToUpper(*currency),
		Description: *description,
		SalesDate:   today(),
	}
	if *date != "" {
		if sub.SalesDate, err = parseDate(*date); err != nil {
			return err
		}
	}
	if sub.CustomerID, err = findCustomer(ctx, app, *customer); err != nil {
		return err
	}

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	if err := services.Approvals.CreateSubmission(ctx, sub, actor); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Sale recorded: %s (ID: %s, %s)\n",
		formatAmount(sub.AmountCents, sub.Currency), sub.ID, sub.Approval.Status)
	return nil
}

// SubmissionsListCommand lists sales submissions.
func SubmissionsListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("submissions list", flag.ExitOnError)
	approvalStatus := fs.String("approval", "", "Filter by approval status")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	subs, err := app.Store.Submissions.List(context.Background(), models.ApprovalStatus(*approvalStatus), *limit)
	if err != nil {
		return fmt.Errorf("failed to list submissions: %w", err)
	}
	if len(subs) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No submissions found")
		return nil
	}

	w := newTable(app.Out, "AMOUNT", "DATE", "APPROVAL", "HUBSPOT", "DESCRIPTION", "ID")
	for _, s := range subs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatAmount(s.AmountCents, s.Currency), s.SalesDate.Local().Format("2006-01-02"),
			s.Approval.Status, orDash(s.ExternalID), orDash(s.Description), shortID(s.ID))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d submission(s)\n", len(subs))
	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
