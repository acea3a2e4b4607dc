// ABOUTME: Long-running service command
// ABOUTME: Runs the REST API, the side-effect job queue and scheduled pull and push passes
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/jobs"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
	"github.com/harperreed/fieldsync/web"
	"go.uber.org/zap"
)

// ServeCommand runs until SIGINT or SIGTERM.
func ServeCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", app.Config.HTTP.Addr, "Listen address for the REST API")
	noSchedule := fs.Bool("no-schedule", false, "Disable scheduled pull and push passes")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.StartServices(ctx)
	if err != nil {
		return err
	}
	defer services.Stop()

	syncer := services.Syncer(app)
	scheduler := jobs.NewScheduler(app.Logger)
	if !*noSchedule && services.Engine != nil {
		if err := schedulePasses(app, scheduler, services.Engine); err != nil {
			return err
		}
	}
	scheduler.Start()

	server := web.NewServer(syncer, services.Approvals, app.Store, app.Logger, app.Metrics, web.Options{
		ImportActor: app.Config.ImportActor,
		PassTimeout: app.Config.Sync.PassTimeout.Duration(),
		Gatherer:    app.Registry,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(*addr)
	}()

	_, _ = fmt.Fprintf(app.Out, "✓ fieldsync serving on %s (%d scheduled passes)\n", *addr, scheduler.Entries())

	select {
	case <-ctx.Done():
		app.Logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			<-scheduler.Stop().Done()
			return fmt.Errorf("REST server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn("REST server shutdown", zap.Error(err))
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		app.Logger.Warn("scheduled pass still running at shutdown")
	}
	return nil
}

// schedulePasses registers pull (contacts, then tasks) and push (tasks, then
// submissions) on the configured schedules.
func schedulePasses(app *App, scheduler *jobs.Scheduler, engine *sync.Engine) error {
	timeout := app.Config.Sync.PassTimeout.Duration()
	limit := app.Config.Sync.Limit

	if app.Config.ImportActor == "" {
		app.Logger.Warn("import_actor is not set; scheduled pulls are disabled")
	} else {
		err := scheduler.Add(app.Config.Sync.PullSchedule, "pull", timeout, func(ctx context.Context) error {
			actor, err := app.Actor(ctx)
			if err != nil {
				return err
			}
			filter := sync.PullFilter{Limit: limit}
			if _, err := engine.PullContacts(ctx, filter, actor); err != nil {
				return err
			}
			_, err = engine.PullTasks(ctx, filter, actor)
			return err
		})
		if err != nil {
			return fmt.Errorf("invalid pull schedule: %w", err)
		}
	}

	err := scheduler.Add(app.Config.Sync.PushSchedule, "push", timeout, func(ctx context.Context) error {
		filter := sync.PushFilter{Limit: limit}
		if _, err := engine.PushTasks(ctx, filter); err != nil {
			return err
		}
		_, err := engine.PushSubmissions(ctx, filter)
		return err
	})
	if err != nil {
		return fmt.Errorf("invalid push schedule: %w", err)
	}
	return nil
}

// offlineSyncer stands in for the engine when HubSpot is not configured.
// Status still reads local bookkeeping; passes fail with a credentials hint.
type offlineSyncer struct {
	status *sync.Engine
}

func (o offlineSyncer) PullTasks(context.Context, sync.PullFilter, models.Actor) (sync.PullResult, error) {
	return sync.PullResult{}, credentialsHint(hubspot.ErrNoCredentials)
}

func (o offlineSyncer) PullContacts(context.Context, sync.PullFilter, models.Actor) (sync.PullResult, error) {
	return sync.PullResult{}, credentialsHint(hubspot.ErrNoCredentials)
}

func (o offlineSyncer) PushTasks(context.Context, sync.PushFilter) (sync.PushResult, error) {
	return sync.PushResult{}, credentialsHint(hubspot.ErrNoCredentials)
}

func (o offlineSyncer) PushSubmissions(context.Context, sync.PushFilter) (sync.PushResult, error) {
	return sync.PushResult{}, credentialsHint(hubspot.ErrNoCredentials)
}

func (o offlineSyncer) Status(ctx context.Context, runs int) ([]models.SyncState, []models.SyncRun, error) {
	return o.status.Status(ctx, runs)
}

var _ web.Syncer = offlineSyncer{}
