// ABOUTME: Review command
// ABOUTME: Opens the full-screen review queue for the acting manager
package cli

import (
	"context"
	"flag"

	"github.com/harperreed/fieldsync/tui"
)

// ReviewCommand launches the interactive review queue.
func ReviewCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	_ = fs.Parse(args)

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

	return tui.Run(tui.NewModel(services.Approvals, services.Syncer(app), actor))
}
