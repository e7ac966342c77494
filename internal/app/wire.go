package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/security-console/internal/access"
	"github.com/odyssey-erp/security-console/internal/assignment"
	assignmenthttp "github.com/odyssey-erp/security-console/internal/assignment/http"
	"github.com/odyssey-erp/security-console/internal/audit"
	audithttp "github.com/odyssey-erp/security-console/internal/audit/http"
	"github.com/odyssey-erp/security-console/internal/auth"
	"github.com/odyssey-erp/security-console/internal/observability"
	"github.com/odyssey-erp/security-console/internal/platform/cache"
	"github.com/odyssey-erp/security-console/internal/provider"
	"github.com/odyssey-erp/security-console/internal/provider/postgres"
	"github.com/odyssey-erp/security-console/internal/provider/rest"
	"github.com/odyssey-erp/security-console/internal/roles"
	"github.com/odyssey-erp/security-console/internal/shared"
	"github.com/odyssey-erp/security-console/internal/users"
	"github.com/odyssey-erp/security-console/jobs"
	"github.com/odyssey-erp/security-console/report"
)

// SessionCookie names the console session cookie.
const SessionCookie = "console_session"

// Relation names used in the assignment URLs.
const (
	RelationRoleFunctions = "functions"
	RelationUserRoles     = "roles"
)

// Relations lists the editable relations and the codes guarding each.
func Relations() []assignment.Relation {
	return []assignment.Relation{
		{
			Name:    RelationRoleFunctions,
			Parent:  "role",
			Items:   "functions",
			Grouped: true,
			Codes: assignment.Codes{
				Screen:     shared.PermFunctionsToRoleRead,
				Parents:    shared.PermRolesRead,
				Candidates: shared.PermFunctionsRead,
				Assigned:   shared.PermFunctionsToRoleRead,
				Update:     shared.PermFunctionsToRoleUpdate,
			},
		},
		{
			Name:   RelationUserRoles,
			Parent: "user",
			Items:  "roles",
			Codes: assignment.Codes{
				Screen:     shared.PermRolesToUserRead,
				Parents:    shared.PermUsersRead,
				Candidates: shared.PermRolesRead,
				Assigned:   shared.PermRolesToUserRead,
				Update:     shared.PermRolesToUserUpdate,
			},
		},
	}
}

// RedisOptions maps the REDIS_* keys.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Backend is a data provider that also signs operators in.
type Backend interface {
	provider.Backend
	provider.Authenticator
}

// Providers holds the clients selected by DATA_BACKEND and AUDIT_SINK.
type Providers struct {
	Backend  Backend
	Sink     audit.Sink
	Timeline audit.Repository
}

// NewProviders selects the data backend and the audit sink. pool may be nil
// when neither uses Postgres.
func NewProviders(cfg *Config, pool *pgxpool.Pool, logger *slog.Logger) (Providers, error) {
	var client *rest.Client
	if cfg.usesREST() {
		client = rest.NewClient(rest.Config{
			BaseURL:      cfg.APIHost,
			Timeout:      cfg.APITimeout,
			RatePerSec:   cfg.APIRatePerSec,
			ServiceToken: cfg.APIServiceToken,
		})
	}
	if cfg.usesPostgres() && pool == nil {
		return Providers{}, errors.New("app: postgres pool required")
	}

	var p Providers
	switch cfg.DataBackend {
	case BackendPostgres:
		p.Backend = postgres.NewStore(pool)
	default:
		p.Backend = client
	}

	switch cfg.AuditSink {
	case AuditSinkPostgres:
		p.Sink = audit.NewPGSink(pool)
		p.Timeline = audit.NewPGRepository(pool)
	case AuditSinkLog:
		p.Sink = audit.LogSink{Logger: logger}
		p.Timeline = audit.LoaderRepository{}
	default:
		p.Sink = rest.AuditSink{Client: client}
		p.Timeline = audit.LoaderRepository{Load: client.ListAudits}
	}
	return p, nil
}

// Deps are the process-wide resources the console is assembled from.
type Deps struct {
	Config  *Config
	Logger  *slog.Logger
	Redis   *redis.Client
	Pool    *pgxpool.Pool
	Metrics *observability.Metrics
}

// Console is the assembled HTTP application.
type Console struct {
	Handler http.Handler
	closers []func() error
}

// Close releases the dispatcher and queue connections.
func (c *Console) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Assemble builds every service and handler and returns the router.
func Assemble(d Deps) (*Console, error) {
	cfg, logger := d.Config, d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	console := &Console{}

	providers, err := NewProviders(cfg, d.Pool, logger)
	if err != nil {
		return nil, err
	}

	queueOpts := cfg.RedisOptions().QueueOpts()
	var dispatcher audit.Dispatcher
	switch cfg.AuditDispatch {
	case AuditDispatchInline:
		dispatcher = audit.SyncDispatcher{Sink: providers.Sink}
	case AuditDispatchAsync:
		async := audit.NewAsyncDispatcher(audit.AsyncConfig{BufferSize: cfg.AuditBuffer, DropIfFull: true}, providers.Sink, logger)
		console.closers = append(console.closers, func() error { async.Close(); return nil })
		dispatcher = async
	default:
		client, err := jobs.NewClient(queueOpts)
		if err != nil {
			return nil, fmt.Errorf("app: queue client: %w", err)
		}
		console.closers = append(console.closers, client.Close)
		dispatcher = client
	}

	tracker := audit.NewCorrelator(dispatcher, logger,
		audit.WithIPResolver(audit.ContextIPResolver{}),
		audit.WithActor(ActorFromContext),
		audit.WithObserver(d.Metrics),
	)

	gate := access.Gate{Logger: logger, Observer: d.Metrics, UnauthorizedPath: cfg.UnauthorizedPath}
	sessions := shared.NewSessionManager(d.Redis, SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)

	// postgres sign-in runs in process and issues no token to verify
	var verifier *access.TokenVerifier
	if cfg.TokenSecret != "" && cfg.DataBackend != "postgres" {
		verifier = access.NewTokenVerifier(cfg.TokenSecret)
	}
	authHandler := auth.NewHandler(logger,
		auth.NewService(providers.Backend, verifier, shared.PermLogin, cfg.SessionTTL),
		sessions, csrf, tracker)

	var reportClient *report.Client
	var renderer roles.Renderer
	if cfg.GotenbergURL != "" {
		reportClient = report.NewClient(cfg.GotenbergURL)
		renderer = reportClient
	}
	rolesHandler := roles.NewHandler(logger,
		roles.NewService(providers.Backend, tracker, roles.Codes{List: shared.PermRolesRead, Report: shared.PermRolesRead}),
		renderer)

	userCodes := users.Codes{List: shared.PermUsersRead, Create: shared.PermUsersCreate, Delete: shared.PermUsersDelete}
	usersHandler := users.NewHandler(logger, users.NewService(providers.Backend, tracker, userCodes), gate, userCodes)

	store := assignment.NewRedisStore(d.Redis, cfg.WorkspaceTTL)
	opts := []assignment.Option{
		assignment.WithTracker(tracker),
		assignment.WithNotifier(shared.FlashNotifier{Logger: logger}),
		assignment.WithCommitObserver(d.Metrics),
		assignment.WithLogger(logger),
	}
	var editors []*assignment.Reconciler
	for _, rel := range Relations() {
		var source assignment.Source
		switch rel.Name {
		case RelationRoleFunctions:
			source = provider.RoleFunctionSource{Backend: providers.Backend}
		case RelationUserRoles:
			source = provider.UserRoleSource{Backend: providers.Backend}
		}
		editors = append(editors, assignment.NewReconciler(rel, source, store, opts...))
	}

	auditHandler := audithttp.NewHandler(logger, audit.NewService(providers.Timeline), tracker, shared.PermAuditRead)

	inspector := asynq.NewInspector(queueOpts)
	console.closers = append(console.closers, inspector.Close)

	console.Handler = NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessions,
		CSRFManager:       csrf,
		Gate:              gate,
		AuthHandler:       authHandler,
		RolesHandler:      rolesHandler,
		UsersHandler:      usersHandler,
		AssignmentHandler: assignmenthttp.NewHandler(logger, gate, editors...),
		AuditHandler:      auditHandler,
		JobHandler:        jobs.NewHandler(inspector, logger),
		ReportClient:      reportClient,
		Metrics:           d.Metrics,
	})
	return console, nil
}
