// ABOUTME: MCP server subcommand
// ABOUTME: Serves the sync and approval tools over stdio for Claude Desktop integration
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/fieldsync/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(app *App, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	app.Logger.Info("starting MCP server", zap.String("version", app.Version))

	server := handlers.NewServer(app.Version, services.Syncer(app), services.Approvals, app.Store, app.Config.ImportActor)
	return server.Run(ctx, &mcp.StdioTransport{})
}
