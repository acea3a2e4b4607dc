// ABOUTME: Shared wiring for CLI commands
// ABOUTME: Opens the store and builds the HubSpot client, sync engine, job queue and approval service
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/config"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/hubspot"
	"github.com/harperreed/fieldsync/jobs"
	"github.com/harperreed/fieldsync/metrics"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
	"github.com/harperreed/fieldsync/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App carries what every command needs.
type App struct {
	Config   *config.Config
	Store    *db.Store
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Version  string
	// ActorEmail is the --actor flag; commands fall back to Config.ImportActor.
	ActorEmail string
	// TokenPath is where the HubSpot OAuth token is stored.
	TokenPath string
	// Out receives command output.
	Out io.Writer
}

// NewApp opens the database named by cfg.
func NewApp(cfg *config.Config, logger *zap.Logger, version string) (*App, error) {
	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		Config:    cfg,
		Store:     db.NewStore(database),
		Logger:    logger,
		Registry:  reg,
		Metrics:   metrics.New(reg),
		Version:   version,
		TokenPath: hubspot.TokenPath(),
		Out:       os.Stdout,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Actor resolves the acting user from --actor, then the configured import actor.
func (a *App) Actor(ctx context.Context) (models.Actor, error) {
	email := strings.TrimSpace(a.ActorEmail)
	if email == "" {
		email = a.Config.ImportActor
	}
	if email == "" {
		return models.Actor{}, fmt.Errorf("no acting user: pass --actor <email> or set import_actor in the config")
	}

	actor, err := a.Store.Actors.FindByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return models.Actor{}, fmt.Errorf("unknown actor %s (add one with 'fieldsync actors add')", email)
	}
	if err != nil {
		return models.Actor{}, err
	}
	return *actor, nil
}

// HubSpot builds an authenticated client from the config and stored token.
func (a *App) HubSpot(ctx context.Context) (*hubspot.Client, error) {
	ts, err := hubspot.TokenSource(ctx, hubspot.Credentials{
		PrivateAppToken: a.Config.HubSpot.Token,
		ClientID:        a.Config.HubSpot.ClientID,
		ClientSecret:    a.Config.HubSpot.ClientSecret,
		TokenPath:       a.TokenPath,
	})
	if err != nil {
		return nil, err
	}

	return hubspot.New(hubspot.Options{
		BaseURL:           a.Config.HubSpot.BaseURL,
		TokenSource:       ts,
		RequestsPerSecond: a.Config.HubSpot.RequestsPerSecond,
		UserAgent:         "fieldsync/" + a.Version,
		Logger:            a.Logger,
	}), nil
}

// Engine builds the reconciliation engine over the HubSpot client.
func (a *App) Engine(ctx context.Context) (*sync.Engine, error) {
	client, err := a.HubSpot(ctx)
	if err != nil {
		return nil, err
	}
	return sync.NewEngine(a.Store, client, a.Logger, a.Metrics), nil
}

// Services is the approval service plus the queue running its side effects.
type Services struct {
	Approvals *approval.Service
	Engine    *sync.Engine
	Queue     *jobs.Queue
	recorder  chan struct{}
}

// StartServices starts the job queue and its outcome recorder. Without
// HubSpot credentials approvals still work and pushes wait for a later pass.
func (a *App) StartServices(ctx context.Context) (*Services, error) {
	engine, err := a.Engine(ctx)
	if err != nil && !errors.Is(err, hubspot.ErrNoCredentials) {
		return nil, err
	}

	queue := jobs.NewQueue(jobs.Options{
		Workers:  a.Config.Jobs.Workers,
		Capacity: a.Config.Jobs.Capacity,
		Timeout:  a.Config.Jobs.Timeout.Duration(),
	}, a.Logger, a.Metrics)

	recorder := jobs.NewOutcomeRecorder(a.Store, a.Logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(queue.Errors())
	}()

	var pusher approval.Pusher
	if engine != nil {
		pusher = engine
	} else {
		a.Logger.Info("HubSpot not configured; approved records will be pushed by a later sync push")
	}

	return &Services{
		Approvals: approval.NewService(a.Store, pusher, queue, a.Logger, a.Metrics),
		Engine:    engine,
		Queue:     queue,
		recorder:  done,
	}, nil
}

// Syncer is the engine, or a stand-in that only reports status when HubSpot
// is not configured.
func (s *Services) Syncer(app *App) web.Syncer {
	if s.Engine != nil {
		return s.Engine
	}
	return offlineSyncer{status: sync.NewEngine(app.Store, nil, app.Logger, nil)}
}

// Stop drains queued side effects and waits until their failures are recorded.
func (s *Services) Stop() {
	s.Queue.Close()
	<-s.recorder
}
