// ABOUTME: HubSpot sync CLI commands
// ABOUTME: Handles OAuth setup, pull and push passes, and sync status
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"

	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/sync"
	"golang.org/x/oauth2"
)

// SyncAuthCommand runs the HubSpot OAuth flow and stores the token.
func SyncAuthCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("auth", flag.ExitOnError)
	addr := fs.String("listen", "localhost:8080", "Address for the OAuth callback listener")
	_ = fs.Parse(args)

	if app.Config.HubSpot.ClientID == "" || app.Config.HubSpot.ClientSecret == "" {
		return fmt.Errorf("hubspot client_id and client_secret are required for OAuth (or set a private app token instead)")
	}

	ctx := context.Background()
	config := hubspot.NewOAuthConfig(app.Config.HubSpot.ClientID, app.Config.HubSpot.ClientSecret)
	state := oauth2.GenerateVerifier()

	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			errChan <- fmt.Errorf("state mismatch in OAuth callback")
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no authorization code received")
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		token, err := config.Exchange(ctx, code)
		if err != nil {
			errChan <- fmt.Errorf("failed to exchange code: %w", err)
			http.Error(w, "token exchange failed", http.StatusBadGateway)
			return
		}

		callbackChan <- token
		_, _ = fmt.Fprintf(w, "Authorization successful! You can close this window.")
	})

	server := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	_, _ = fmt.Fprintln(app.Out, "Opening browser for HubSpot OAuth...")
	_, _ = fmt.Fprintf(app.Out, "\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	_ = openBrowser(authURL)

	select {
	case token := <-callbackChan:
		_ = server.Shutdown(ctx)

		path := app.TokenPath
		if err := hubspot.SaveToken(path, token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}

		_, _ = fmt.Fprintf(app.Out, "\n✓ Authenticated successfully\n")
		_, _ = fmt.Fprintf(app.Out, "✓ Token saved to %s\n\n", path)
		_, _ = fmt.Fprintln(app.Out, "Ready to sync! Run 'fieldsync sync pull' to import tasks.")
		return nil

	case err := <-errChan:
		_ = server.Shutdown(ctx)
		return fmt.Errorf("OAuth flow failed: %w", err)
	}
}

// SyncPullCommand imports tasks, or contacts with --contacts, from HubSpot.
func SyncPullCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("pull", flag.ExitOnError)
	limit := fs.Int("limit", app.Config.Sync.Limit, "Maximum records per pass (at most 100)")
	from := fs.String("from", "", "Only records modified on or after this date")
	to := fs.String("to", "", "Only records modified on or before this date")
	contacts := fs.Bool("contacts", false, "Pull contacts instead of tasks")
	_ = fs.Parse(args)

	filter := sync.PullFilter{Limit: *limit}
	var err error
	if filter.From, err = parseOptionalDate(*from); err != nil {
		return err
	}
	if filter.To, err = parseOptionalDate(*to); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Sync.PassTimeout.Duration())
	defer cancel()

	actor, err := app.Actor(ctx)
	if err != nil {
		return err
	}
	engine, err := app.Engine(ctx)
	if err != nil {
		return credentialsHint(err)
	}

	entity := "tasks"
	pull := engine.PullTasks
	if *contacts {
		entity = "contacts"
		pull = engine.PullContacts
	}

	_, _ = fmt.Fprintf(app.Out, "Pulling HubSpot %s...\n", entity)
	result, err := pull(ctx, filter, actor)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "  ✓ Fetched %d\n", result.Fetched)
	_, _ = fmt.Fprintf(app.Out, "  ✓ Created %d, updated %d, unchanged %d\n", result.Created, result.Updated, result.Unchanged)
	if result.Skipped > 0 {
		_, _ = fmt.Fprintf(app.Out, "  ✗ Skipped %d (see logs)\n", result.Skipped)
	}
	return nil
}

// SyncPushCommand sends approved tasks, or submissions with --submissions, to HubSpot.
func SyncPushCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	missing := fs.Bool("missing", false, "Only records never created in HubSpot")
	retry := fs.Bool("retry-association", false, "Only records whose association failed")
	limit := fs.Int("limit", app.Config.Sync.Limit, "Maximum records per pass (at most 100)")
	submissions := fs.Bool("submissions", false, "Push sales submissions instead of tasks")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Sync.PassTimeout.Duration())
	defer cancel()

	engine, err := app.Engine(ctx)
	if err != nil {
		return credentialsHint(err)
	}

	filter := sync.PushFilter{OnlyMissingExternalRef: *missing, OnlyRetryAssociation: *retry, Limit: *limit}
	entity := "tasks"
	push := engine.PushTasks
	if *submissions {
		entity = "submissions"
		push = engine.PushSubmissions
	}

	_, _ = fmt.Fprintf(app.Out, "Pushing approved %s to HubSpot...\n", entity)
	result, err := push(ctx, filter)
	if err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	_, _ = fmt.Fprintf(app.Out, "  ✓ Synced %d of %d\n", result.Synced, result.Attempted)
	if result.Partial > 0 {
		_, _ = fmt.Fprintf(app.Out, "  ~ %d created in HubSpot but not yet associated\n", result.Partial)
	}
	for _, f := range result.Failed {
		_, _ = fmt.Fprintf(app.Out, "  ✗ %s failed at %s: %s\n", shortID(f.RecordID), f.Stage, f.Error)
	}
	return nil
}

// SyncStatusCommand shows per-service sync state and recent passes.
func SyncStatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	runs := fs.Int("runs", 10, "Number of recent passes to show")
	_ = fs.Parse(args)

	states, history, err := sync.NewEngine(app.Store, nil, app.Logger, nil).Status(context.Background(), *runs)
	if err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}

	_, _ = fmt.Fprintln(app.Out, "\nSync Status:")
	_, _ = fmt.Fprintln(app.Out)
	if len(states) == 0 {
		_, _ = fmt.Fprintln(app.Out, "No sync has run yet. Run 'fieldsync sync pull' to start.")
		return nil
	}

	for _, s := range states {
		_, _ = fmt.Fprintf(app.Out, "%s:\n", s.Service)
		_, _ = fmt.Fprintf(app.Out, "  Status: %s\n", s.Status)
		if s.LastSyncTime != nil {
			_, _ = fmt.Fprintf(app.Out, "  Last sync: %s\n", formatTimeSince(*s.LastSyncTime))
		} else {
			_, _ = fmt.Fprintln(app.Out, "  Last sync: never")
		}
		if s.ErrorMessage != "" {
			_, _ = fmt.Fprintf(app.Out, "  Error: %s\n", s.ErrorMessage)
		}
		_, _ = fmt.Fprintln(app.Out)
	}

	if len(history) > 0 {
		_, _ = fmt.Fprintln(app.Out, "Recent passes:")
		w := newTable(app.Out, "STARTED", "PASS", "FETCHED", "CREATED", "UPDATED", "SKIPPED", "FAILED")
		for _, r := range history {
			_, _ = fmt.Fprintf(w, "%s\t%s %s\t%d\t%d\t%d\t%d\t%d\n", formatTimeSince(r.StartedAt),
				r.Direction, r.Entity, r.Fetched, r.Created, r.Updated, r.Skipped, r.Failed)
		}
		_ = w.Flush()
	}

	return nil
}

func credentialsHint(err error) error {
	if errors.Is(err, hubspot.ErrNoCredentials) {
		return fmt.Errorf("%w: set hubspot.token or run 'fieldsync sync auth'", err)
	}
	return err
}

// openBrowser attempts to open URL in default browser
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	return exec.Command(cmd, args...).Start()
}
