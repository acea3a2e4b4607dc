// ABOUTME: Actor, customer and sales target CLI commands
// ABOUTME: Manages the people, accounts and goals that field activity refers to
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
)

// ActorsAddCommand adds a user who can draft or review records.
func ActorsAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("actors add", flag.ExitOnError)
	name := fs.String("name", "", "Display name (required)")
	email := fs.String("email", "", "Email address (required)")
	role := fs.String("role", models.RoleRep, "Role: rep, manager or admin")
	_ = fs.Parse(args)

	if *name == "" || *email == "" {
		return fmt.Errorf("--name and --email are required")
	}
	switch *role {
	case models.RoleRep, models.RoleManager, models.RoleAdmin:
	default:
		return fmt.Errorf("invalid role %q (use rep, manager or admin)", *role)
	}
	if sync.NormalizeEmail(*email) == "" {
		return fmt.Errorf("invalid email %q", *email)
	}

	actor := &models.Actor{Name: *name, Email: *email, Role: *role}
	if err := app.Store.Actors.Create(context.Background(), actor); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return fmt.Errorf("an actor with email %s already exists", *email)
		}
		return fmt.Errorf("failed to create actor: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Actor created: %s <%s> as %s (ID: %s)\n", actor.Name, actor.Email, actor.Role, actor.ID)
	return nil
}

// ActorsListCommand lists all actors.
func ActorsListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("actors list", flag.ExitOnError)
	_ = fs.Parse(args)

	actors, err := app.Store.Actors.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list actors: %w", err)
	}
	if len(actors) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No actors found")
		return nil
	}

	w := newTable(app.Out, "NAME", "EMAIL", "ROLE", "ID")
	for _, a := range actors {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.Email, a.Role, shortID(a.ID))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d actor(s)\n", len(actors))
	return nil
}

// CustomersAddCommand adds a customer by hand.
func CustomersAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("customers add", flag.ExitOnError)
	name := fs.String("name", "", "Customer name (required)")
	email := fs.String("email", "", "Email address")
	phone := fs.String("phone", "", "Phone number")
	company := fs.String("company", "", "Company name")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	customer := &models.Customer{
		Name:            *name,
		Email:           *email,
		EmailNormalized: sync.NormalizeEmail(*email),
		Phone:           *phone,
		CompanyName:     *company,
		Provenance:      models.ProvenanceApp,
	}
	if err := app.Store.Customers.Create(context.Background(), customer); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return fmt.Errorf("a customer with email %s already exists", *email)
		}
		return fmt.Errorf("failed to create customer: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Customer created: %s (ID: %s)\n", customer.Name, customer.ID)
	return nil
}

// CustomersListCommand lists customers.
func CustomersListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("customers list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	customers, err := app.Store.Customers.List(context.Background(), *limit)
	if err != nil {
		return fmt.Errorf("failed to list customers: %w", err)
	}
	if len(customers) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No customers found")
		return nil
	}

	w := newTable(app.Out, "NAME", "EMAIL", "COMPANY", "HUBSPOT", "FROM", "ID")
	for _, c := range customers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name, orDash(c.Email), orDash(c.CompanyName), orDash(c.ExternalID), orDash(string(c.Provenance)), shortID(c.ID))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(app.Out, "\nTotal: %d customer(s)\n", len(customers))
	return nil
}

// TargetsAddCommand adds a sales target.
func TargetsAddCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("targets add", flag.ExitOnError)
	targetType := fs.String("type", models.TargetTypeRevenue, "Target type: revenue, visits or orders")
	value := fs.String("value", "", "Goal; a money amount for revenue targets (required)")
	start := fs.String("start", "", "First day of the target window, YYYY-MM-DD (required)")
	end := fs.String("end", "", "Last day of the target window, YYYY-MM-DD (required)")
	owner := fs.String("owner", "", "Email of the rep the target belongs to (default: team-wide)")
	_ = fs.Parse(args)

	if *value == "" || *start == "" || *end == "" {
		return fmt.Errorf("--value, --start and --end are required")
	}

	target := &models.SalesTarget{Type: *targetType, Active: true}
	switch *targetType {
	case models.TargetTypeRevenue:
		cents, err := parseAmount(*value)
		if err != nil {
			return err
		}
		target.TargetValue = cents
	case models.TargetTypeVisits, models.TargetTypeOrders:
		var n int64
		if _, err := fmt.Sscan(*value, &n); err != nil {
			return fmt.Errorf("invalid value %q", *value)
		}
		target.TargetValue = n
	default:
		return fmt.Errorf("invalid type %q (use revenue, visits or orders)", *targetType)
	}

	startDate, err := parseDate(*start)
	if err != nil {
		return err
	}
	endDate, err := parseDate(*end)
	if err != nil {
		return err
	}
	target.StartDate = startDate
	// the window includes the whole last day
	target.EndDate = endDate.AddDate(0, 0, 1).Add(-1)

	ctx := context.Background()
	if *owner != "" {
		actor, err := app.Store.Actors.FindByEmail(ctx, *owner)
		if err != nil {
			return fmt.Errorf("unknown owner %s: %w", *owner, err)
		}
		target.OwnerID = &actor.ID
	}

	if err := app.Store.Targets.Create(ctx, target); err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Target created: %s %s from %s to %s (ID: %s)\n",
		target.Type, *value, startDate.Format("2006-01-02"), endDate.Format("2006-01-02"), target.ID)
	return nil
}

// TargetsListCommand lists sales targets with progress.
func TargetsListCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("targets list", flag.ExitOnError)
	all := fs.Bool("all", false, "Include inactive targets")
	_ = fs.Parse(args)

	targets, err := app.Store.Targets.List(context.Background(), !*all)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	if len(targets) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No targets found")
		return nil
	}

	w := newTable(app.Out, "TYPE", "PROGRESS", "GOAL", "WINDOW", "OWNER", "ID")
	for _, t := range targets {
		progress, goal := fmt.Sprint(t.CurrentProgress), fmt.Sprint(t.TargetValue)
		if t.Type == models.TargetTypeRevenue {
			progress = strings.TrimSpace(formatAmount(t.CurrentProgress, ""))
			goal = strings.TrimSpace(formatAmount(t.TargetValue, ""))
		}
		owner := "team"
		if t.OwnerID != nil {
			owner = shortID(*t.OwnerID)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s..%s\t%s\t%s\n", t.Type, progress, goal,
			t.StartDate.Local().Format("2006-01-02"), t.EndDate.Local().Format("2006-01-02"), owner, shortID(t.ID))
	}
	_ = w.Flush()

	return nil
}

// findCustomer resolves --customer as a customer id or email.
func findCustomer(ctx context.Context, app *App, value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	if id, err := uuid.Parse(value); err == nil {
		if _, err := app.Store.Customers.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("unknown customer %s: %w", value, err)
		}
		return &id, nil
	}

	customer, err := app.Store.Customers.FindByEmail(ctx, sync.NormalizeEmail(value))
	if err != nil {
		return nil, fmt.Errorf("unknown customer %s: %w", value, err)
	}
	return &customer.ID, nil
}
