package main

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/account"
	"github.com/ehr/tracker/internal/domain/episode"
	"github.com/ehr/tracker/internal/domain/patient"
	"github.com/ehr/tracker/internal/domain/record"
	"github.com/ehr/tracker/internal/domain/schema"
	"github.com/ehr/tracker/internal/domain/team"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/events"
	"github.com/ehr/tracker/internal/platform/metrics"
	"github.com/ehr/tracker/internal/platform/middleware"
	"github.com/ehr/tracker/internal/platform/plugin"
	"github.com/ehr/tracker/internal/platform/templates"
	"github.com/ehr/tracker/internal/platform/validate"
	"github.com/ehr/tracker/internal/web"
)

const version = "0.1.0"

// repos is the storage the services are built on.
type repos struct {
	records  record.Repository
	teams    team.Repository
	patients patient.Repository
	episodes episode.Repository
	accounts account.Repository
	tx       db.Transactor
}

func pgRepos(pool *pgxpool.Pool) repos {
	return repos{
		records:  record.NewRepoPG(pool),
		teams:    team.NewRepoPG(pool),
		patients: patient.NewRepoPG(pool),
		episodes: episode.NewRepoPG(pool),
		accounts: account.NewRepoPG(pool),
		tx:       db.NewTransactor(pool),
	}
}

// app holds everything the HTTP server is assembled from.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   *metrics.Manager
	sessions  *auth.Sessions
	revoked   *auth.MemoryRevocations
	columns   *schema.Registry
	plugins   *plugin.Registry
	templates *templates.Set
	validator *validate.Validator

	records  *record.Service
	teams    *team.Service
	patients *patient.Service
	episodes *episode.Service
	accounts *account.Service

	pinger    db.Pinger
	poolStats func() *db.PoolStats
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newLimiter throttles logins in Redis when a client is available and in
// process memory otherwise.
func newLimiter(rdb *redis.Client, max int) account.Limiter {
	if rdb != nil {
		return account.NewRedisLimiter(rdb, max)
	}
	return account.NewMemoryLimiter(max)
}

// newPublisher fans events out to the log, Redis and the webhook, skipping
// whatever is not configured.
func newPublisher(cfg *config.Config, logger zerolog.Logger, rdb *redis.Client) events.Publisher {
	pubs := events.Multi{events.LogPublisher{Logger: logger}}
	if rdb != nil {
		pubs = append(pubs, events.NewRedisPublisher(rdb, cfg.EventChannel))
	}
	if cfg.EventWebhookURL != "" {
		pubs = append(pubs, events.NewWebhookPublisher(cfg.EventWebhookURL, cfg.EventSecret))
	}
	return pubs
}

func newRedis(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// loadSchema reads the schema file once for columns and plugins.
func loadSchema(path string) (*schema.Registry, *plugin.Registry, error) {
	file, err := schema.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	loaded, err := plugin.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	plugins := plugin.NewRegistry(loaded...)
	columns, err := schema.NewRegistry(file.Columns, append(plugins.ListSchemas(), file.ListSchemas)...)
	if err != nil {
		return nil, nil, err
	}
	return columns, plugins, nil
}

func newApp(cfg *config.Config, logger zerolog.Logger, r repos, limiter account.Limiter, pub events.Publisher, m *metrics.Manager) (*app, error) {
	columns, plugins, err := loadSchema(cfg.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	layers := []fs.FS{web.DefaultTemplates()}
	if cfg.TemplateDir != "" {
		layers = append([]fs.FS{os.DirFS(cfg.TemplateDir)}, layers...)
	}
	set, err := templates.New(plugins.FuncMap(), layers...)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	revocations := auth.NewMemoryRevocations(time.Minute)
	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.TLSEnabled || cfg.IsProduction()).
		WithRevocations(revocations)

	bus := events.NewBus(pub, logger, m)

	records := record.NewService(r.records, columns, bus)
	records.SetConflictObserver(m)
	teams := team.NewService(r.teams)
	patients := patient.NewService(r.patients, records)
	episodes := episode.NewService(r.episodes, patients, records, teams, r.tx, bus)
	episodes.SetObserver(m)
	accounts := account.NewService(r.accounts, limiter)
	accounts.SetObserver(m)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		sessions:  sessions,
		revoked:   revocations,
		columns:   columns,
		plugins:   plugins,
		templates: set,
		validator: validate.New(),
		records:   records,
		teams:     teams,
		patients:  patients,
		episodes:  episodes,
		accounts:  accounts,
	}, nil
}

// routes builds the echo server with middleware and every handler mounted.
func (a *app) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templates.Renderer{Set: a.templates}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{Skipper: auth.PublicSkipper}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     a.cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(a.sessions.Middleware())
	e.Use(middleware.Audit(a.logger))
	e.Use(middleware.ETag(middleware.ETagConfig{
		Prefixes: []string{"/templates/", "/accounts/templates/"},
		Vary:     []string{"Cookie"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if a.pinger != nil {
		e.GET("/health/db", db.HealthHandler(a.pinger, a.poolStats))
	}
	e.GET("/metrics", a.metrics.Handler())

	requireLogin := auth.RequireLogin(account.LoginPath)

	api := e.Group("/api/v1",
		middleware.RateLimit(rateLimitCfg),
		middleware.BodyLimit(a.cfg.BodyLimit),
		auth.RequireAPILogin(),
	)
	record.NewHandler(a.records).RegisterRoutes(api)
	episode.NewHandler(a.episodes, a.validator).RegisterRoutes(api)
	a.plugins.RegisterRoutes(api)

	account.NewHandler(a.accounts, a.sessions, a.validator).RegisterRoutes(e, requireLogin)

	web.NewHandler(a.templates, a.columns, a.teams, a.episodes, web.Options{
		BrandName:        a.cfg.BrandName,
		ExtraApplication: a.cfg.ExtraApplication,
		Settings:         a.cfg.PublicSettings(),
	}).RegisterRoutes(e, requireLogin)

	return e
}
