// ABOUTME: REST API server for sync passes and approvals
// ABOUTME: Serves pull/push triggers, approval transitions, sync status and Prometheus metrics over echo
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/approval"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/metrics"
	"github.com/harperreed/fieldsync/models"
	"github.com/harperreed/fieldsync/sync"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ActorHeader names the acting user. Actors are trusted as named.
const ActorHeader = "X-Actor-Email"

// Syncer runs reconciliation passes. *sync.Engine implements it.
type Syncer interface {
	PullTasks(ctx context.Context, filter sync.PullFilter, actor models.Actor) (sync.PullResult, error)
	PullContacts(ctx context.Context, filter sync.PullFilter, actor models.Actor) (sync.PullResult, error)
	PushTasks(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	PushSubmissions(ctx context.Context, filter sync.PushFilter) (sync.PushResult, error)
	Status(ctx context.Context, runs int) ([]models.SyncState, []models.SyncRun, error)
}

var _ Syncer = (*sync.Engine)(nil)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type Options struct {
	// ImportActor is used for pulls that carry no actor header.
	ImportActor string
	// PassTimeout bounds each pass triggered over HTTP.
	PassTimeout time.Duration
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	echo      *echo.Echo
	syncer    Syncer
	approvals *approval.Service
	store     *db.Store
	logger    *zap.Logger
	validator *validator.Validate
	opts      Options
}

func NewServer(syncer Syncer, approvals *approval.Service, store *db.Store, logger *zap.Logger, m *metrics.Metrics, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 5 * time.Minute
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		echo:      echo.New(),
		syncer:    syncer,
		approvals: approvals,
		store:     store,
		logger:    logger.Named("web"),
		validator: validator.New(),
		opts:      opts,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			s.logger.Info("request", fields...)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(m.Middleware())

	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	s.echo.POST("/sync/pull", s.handlePull)
	s.echo.POST("/sync/push", s.handlePush)
	s.echo.GET("/sync/status", s.handleStatus)
	s.echo.GET("/pending", s.handlePending)

	for _, kind := range []string{"tasks", "visits", "submissions"} {
		g := s.echo.Group("/" + kind)
		entity, _ := approval.ParseEntity(kind)
		g.POST("/:id/approve", s.handleTransition(entity, approval.ActionApprove))
		g.POST("/:id/reject", s.handleTransition(entity, approval.ActionReject))
		g.POST("/:id/reopen", s.handleTransition(entity, approval.ActionReopen))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting REST server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type pullRequest struct {
	Entity string     `json:"entity" validate:"omitempty,oneof=tasks contacts all"`
	Limit  int        `json:"limit" validate:"gte=0"`
	From   *time.Time `json:"from"`
	To     *time.Time `json:"to"`
}

type pullResponse struct {
	Tasks    *sync.PullResult `json:"tasks,omitempty"`
	Contacts *sync.PullResult `json:"contacts,omitempty"`
}

func (s *Server) handlePull(c echo.Context) error {
	var req pullRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	email := c.Request().Header.Get(ActorHeader)
	if email == "" {
		email = s.opts.ImportActor
	}
	actor, err := s.actor(c, email)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.PassTimeout)
	defer cancel()

	filter := sync.PullFilter{Limit: req.Limit, From: req.From, To: req.To}
	entity := req.Entity
	if entity == "" {
		entity = "tasks"
	}

	var resp pullResponse
	if entity == "contacts" || entity == "all" {
		result, err := s.syncer.PullContacts(ctx, filter, actor)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Contacts = &result
	}
	if entity == "tasks" || entity == "all" {
		result, err := s.syncer.PullTasks(ctx, filter, actor)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Tasks = &result
	}

	return c.JSON(http.StatusOK, resp)
}

type pushRequest struct {
	Entity                 string `json:"entity" validate:"omitempty,oneof=tasks submissions all"`
	OnlyMissingExternalRef bool   `json:"only_missing_external_ref"`
	OnlyRetryAssociation   bool   `json:"only_retry_association"`
	Limit                  int    `json:"limit" validate:"gte=0"`
}

type pushResponse struct {
	Tasks       *sync.PushResult `json:"tasks,omitempty"`
	Submissions *sync.PushResult `json:"submissions,omitempty"`
}

func (s *Server) handlePush(c echo.Context) error {
	var req pushRequest
	if err := s.bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.PassTimeout)
	defer cancel()

	filter := sync.PushFilter{
		OnlyMissingExternalRef: req.OnlyMissingExternalRef,
		OnlyRetryAssociation:   req.OnlyRetryAssociation,
		Limit:                  req.Limit,
	}
	entity := req.Entity
	if entity == "" {
		entity = "all"
	}

	var resp pushResponse
	if entity == "tasks" || entity == "all" {
		result, err := s.syncer.PushTasks(ctx, filter)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Tasks = &result
	}
	if entity == "submissions" || entity == "all" {
		result, err := s.syncer.PushSubmissions(ctx, filter)
		if err != nil {
			return s.fail(c, err)
		}
		resp.Submissions = &result
	}

	return c.JSON(http.StatusOK, resp)
}

type statusResponse struct {
	Services []models.SyncState `json:"services"`
	Runs     []models.SyncRun   `json:"runs"`
}

func (s *Server) handleStatus(c echo.Context) error {
	runs := 10
	if raw := c.QueryParam("runs"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return apiError(http.StatusBadRequest, "validation_error", "runs must be a positive integer")
		}
		runs = n
	}

	states, recent, err := s.syncer.Status(c.Request().Context(), runs)
	if err != nil {
		return s.fail(c, err)
	}
	if states == nil {
		states = []models.SyncState{}
	}
	if recent == nil {
		recent = []models.SyncRun{}
	}

	return c.JSON(http.StatusOK, statusResponse{Services: states, Runs: recent})
}

func (s *Server) handlePending(c echo.Context) error {
	pending, err := s.approvals.ListPending(c.Request().Context(), 100)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, pending)
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleTransition(entity db.Entity, action approval.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return apiError(http.StatusBadRequest, "validation_error", "invalid id")
		}

		var req transitionRequest
		if err := s.bind(c, &req); err != nil {
			return err
		}

		actor, err := s.actor(c, c.Request().Header.Get(ActorHeader))
		if err != nil {
			return err
		}

		ctx := c.Request().Context()
		var next models.Approval
		switch action {
		case approval.ActionApprove:
			next, err = s.approvals.Approve(ctx, entity, id, actor)
		case approval.ActionReject:
			next, err = s.approvals.Reject(ctx, entity, id, actor, req.Reason)
		default:
			next, err = s.approvals.Reopen(ctx, entity, id, actor)
		}
		if err != nil {
			return s.fail(c, err)
		}

		return c.JSON(http.StatusOK, next)
	}
}

// bind decodes and validates the body. An empty body leaves req at its zero value.
func (s *Server) bind(c echo.Context, req any) error {
	if c.Request().ContentLength != 0 {
		if err := c.Bind(req); err != nil {
			return apiError(http.StatusBadRequest, "invalid_request", "Invalid request body")
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return apiError(http.StatusBadRequest, "validation_error", err.Error())
	}
	return nil
}

func (s *Server) actor(c echo.Context, email string) (models.Actor, error) {
	if email == "" {
		return models.Actor{}, apiError(http.StatusUnauthorized, "unauthorized", ActorHeader+" header is required")
	}
	actor, err := s.store.Actors.FindByEmail(c.Request().Context(), email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return models.Actor{}, apiError(http.StatusUnauthorized, "unauthorized", "unknown actor "+email)
		}
		return models.Actor{}, s.fail(c, err)
	}
	return *actor, nil
}

// fail maps domain errors onto status codes.
func (s *Server) fail(c echo.Context, err error) error {
	status, code := http.StatusInternalServerError, "server_error"

	switch {
	case sync.IsValidation(err), errors.Is(err, approval.ErrReasonRequired):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, approval.ErrNotPermitted):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, db.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, approval.ErrInvalidTransition), errors.Is(err, db.ErrStaleApproval):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(err))
	}

	return apiError(status, code, err.Error())
}

// apiError is rendered by echo's error handler as an ErrorResponse body.
func apiError(status int, code, message string) error {
	return echo.NewHTTPError(status, ErrorResponse{Error: code, Message: message})
}
