// ABOUTME: Entry point for the fieldsync CLI, REST service and MCP server
// ABOUTME: Loads config, builds the logger and routes to subcommands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/cli"
	"github.com/harperreed/fieldsync/config"
	"github.com/harperreed/fieldsync/logging"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", config.DefaultPath(), "Config file path")
	dbPath := flag.String("db-path", "", "Database path (overrides config)")
	actorEmail := flag.String("actor", "", "Email of the acting user (default: import_actor from config)")
	flag.Usage = printUsage

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("fieldsync version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logging.Sync(logger) }()

	app, err := cli.NewApp(cfg, logger, version)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer func() { _ = app.Close() }()
	app.ActorEmail = *actorEmail

	if err := run(app, *configPath, args[0], args[1:]); err != nil {
		_ = app.Close()
		_ = logging.Sync(logger)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(app *cli.App, configPath, command string, args []string) error {
	switch command {
	case "init":
		return cli.InitCommand(app, configPath)
	case "serve":
		return cli.ServeCommand(app, args)
	case "mcp":
		return cli.MCPCommand(app, args)
	case "review":
		return cli.ReviewCommand(app, args)
	case "pending":
		return cli.PendingCommand(app, args)
	case "approve":
		return cli.ApprovalCommand(app, approval.ActionApprove, args)
	case "reject":
		return cli.ApprovalCommand(app, approval.ActionReject, args)
	case "reopen":
		return cli.ApprovalCommand(app, approval.ActionReopen, args)
	case "sync":
		return route("sync", args, map[string]func(*cli.App, []string) error{
			"auth":   cli.SyncAuthCommand,
			"pull":   cli.SyncPullCommand,
			"push":   cli.SyncPushCommand,
			"status": cli.SyncStatusCommand,
		}, app)
	case "actors":
		return route("actors", args, map[string]func(*cli.App, []string) error{
			"add":  cli.ActorsAddCommand,
			"list": cli.ActorsListCommand,
		}, app)
	case "customers":
		return route("customers", args, map[string]func(*cli.App, []string) error{
			"add":  cli.CustomersAddCommand,
			"list": cli.CustomersListCommand,
		}, app)
	case "tasks":
		return route("tasks", args, map[string]func(*cli.App, []string) error{
			"add":  cli.TasksAddCommand,
			"list": cli.TasksListCommand,
		}, app)
	case "visits":
		return route("visits", args, map[string]func(*cli.App, []string) error{
			"add":  cli.VisitsAddCommand,
			"list": cli.VisitsListCommand,
		}, app)
	case "submissions":
		return route("submissions", args, map[string]func(*cli.App, []string) error{
			"add":  cli.SubmissionsAddCommand,
			"list": cli.SubmissionsListCommand,
		}, app)
	case "targets":
		return route("targets", args, map[string]func(*cli.App, []string) error{
			"add":  cli.TargetsAddCommand,
			"list": cli.TargetsListCommand,
		}, app)
	}

	printUsage()
	return fmt.Errorf("unknown command: %s", command)
}

// route dispatches a two-level command such as "tasks add".
func route(group string, args []string, commands map[string]func(*cli.App, []string) error, app *cli.App) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("%s requires a subcommand", group)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown %s command: %s", group, args[0])
	}
	return cmd(app, args[1:])
}

func printUsage() {
	fmt.Printf(`fieldsync v%s - field sales activity with HubSpot sync

USAGE:
  fieldsync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/fieldsync/config.json)
  --db-path <path>       Database path (default: ~/.local/share/fieldsync/fieldsync.db)
  --actor <email>        Acting user (default: import_actor from config)

COMMANDS:
  init                   Write a default config and create the database
  serve                  Run the REST API, job queue and scheduled sync passes
    --addr <addr>            Listen address (default: :8080)
    --no-schedule            Disable scheduled passes
  mcp                    Start MCP server on stdio (for Claude Desktop)
  review                 Open the interactive review queue

APPROVALS:
  fieldsync pending                          List records waiting for review
  fieldsync approve <kind> <id>              Approve a task, visit or submission
  fieldsync reject <kind> <id> --reason <r>  Reject with a reason
  fieldsync reopen <kind> <id>               Send a rejected record back to review

RECORDS:
  fieldsync actors add --name <n> --email <e> [--role rep|manager|admin]
  fieldsync actors list
  fieldsync customers add --name <n> [--email <e>] [--phone <p>] [--company <c>]
  fieldsync customers list [--limit <n>]
  fieldsync tasks add --title <t> [--type <type>] [--priority <p>] [--due YYYY-MM-DD] [--customer <id|email>]
  fieldsync tasks list [--approval <status>] [--status <status>] [--type <type>] [--mine]
  fieldsync visits add --title <t> --date <date> [--customer <id|email>] [--address <a>] [--lat <x> --lng <y>]
  fieldsync visits list [--approval <status>]
  fieldsync submissions add --amount <1250.50> [--currency USD] [--date YYYY-MM-DD] [--customer <id|email>]
  fieldsync submissions list [--approval <status>]
  fieldsync targets add --value <v> --start <date> --end <date> [--type revenue|visits|orders] [--owner <email>]
  fieldsync targets list [--all]

SYNC:
  fieldsync sync auth                        Authorize with HubSpot via OAuth
  fieldsync sync pull [--contacts] [--limit <n>] [--from <date>] [--to <date>]
  fieldsync sync push [--submissions] [--missing] [--retry-association] [--limit <n>]
  fieldsync sync status [--runs <n>]

EXAMPLES:
  # Register yourself as a manager and import tasks
  fieldsync actors add --name "Max" --email max@example.com --role manager
  fieldsync --actor max@example.com sync pull --from 2026-01-01

  # A rep logs a sale; a manager approves it, which pushes it to HubSpot
  fieldsync --actor rita@example.com submissions add --amount 1250.50
  fieldsync --actor max@example.com approve submission <id>

`, version)
}
