// ABOUTME: Init command
// ABOUTME: Writes a default config file and creates the database
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/harperreed/fieldsync/config"
)

// InitCommand writes the default config to path unless one already exists.
// The database itself was created when the App opened it.
func InitCommand(app *App, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := config.Default().Save(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		_, _ = fmt.Fprintf(app.Out, "✓ Config written to %s\n", path)
	} else if err != nil {
		return err
	} else {
		_, _ = fmt.Fprintf(app.Out, "✓ Config exists at %s\n", path)
	}

	_, _ = fmt.Fprintf(app.Out, "✓ Database ready at %s\n", app.Config.DBPath)
	_, _ = fmt.Fprintf(app.Out, "  HubSpot token file: %s\n\n", app.TokenPath)
	_, _ = fmt.Fprintln(app.Out, "Next steps:")
	_, _ = fmt.Fprintln(app.Out, "  1. fieldsync actors add --name \"You\" --email you@example.com --role admin")
	_, _ = fmt.Fprintln(app.Out, "  2. set hubspot.token in the config, or run 'fieldsync sync auth'")
	_, _ = fmt.Fprintln(app.Out, "  3. fieldsync sync pull")
	return nil
}
