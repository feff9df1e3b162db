// Package http serves the server-rendered front-end: session cookie handling,
// route guarding and the HTML pages backed by the expense API.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"expensio/internal/api"
	"expensio/internal/cache"
	"expensio/internal/core"
	"expensio/internal/log"
	"expensio/internal/middleware/ratelimit"
	"expensio/internal/middleware/security"
	"expensio/internal/middleware/trace"
	"expensio/internal/session"
	appweb "expensio/web"
)

// Options wires the server to its collaborators.
type Options struct {
	Addr     string
	API      *api.Client
	Sessions session.Provider
	Events   session.EventPublisher

	// Ping checks the session store for /readyz. Optional.
	Ping func(ctx context.Context) error
	// Purge drops sessions idle for longer than SessionTTL. Optional. The
	// server is the only process that purges the session store.
	Purge         func(ctx context.Context, ttl time.Duration) (int64, error)
	PurgeInterval time.Duration // default one hour

	SessionTTL    time.Duration
	CookieSecure  bool
	AuthRateLimit int
	Logger        *log.Logger
	Now           func() time.Time
}

type Server struct {
	http.Server

	api      *api.Client
	sessions session.Provider
	events   session.EventPublisher
	ping     func(ctx context.Context) error
	purge    func(ctx context.Context, ttl time.Duration) (int64, error)

	sessionTTL   time.Duration
	cookieSecure bool
	logger       *log.Logger
	now          func() time.Time
	templates    map[string]*template.Template

	traceMiddleware  *trace.Middleware
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter

	cacheManager    *cache.Manager
	categoriesCache *cache.LRUCache[[]core.Category]
	usersCache      *cache.LRUCache[[]core.User]
	appMetrics      *appMetrics

	stopPurge    chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(opts Options) (*Server, error) {
	if opts.API == nil || opts.Sessions == nil {
		return nil, errors.New("http: API client and session provider are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = time.Hour
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		api:          opts.API,
		sessions:     opts.Sessions,
		events:       opts.Events,
		ping:         opts.Ping,
		purge:        opts.Purge,
		sessionTTL:   opts.SessionTTL,
		cookieSecure: opts.CookieSecure,
		logger:       logger,
		now:          opts.Now,
		templates:    templates,

		securityDetector: security.NewDetector(opts.Logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.AuthRateLimit,
			CleanupInterval:   5 * time.Minute,
		}),

		cacheManager:    cache.NewManager(opts.Logger),
		categoriesCache: cache.NewLRUCache[[]core.Category](200, 5*time.Minute),
		usersCache:      cache.NewLRUCache[[]core.User](200, 5*time.Minute),
		appMetrics:      &appMetrics{uptime: opts.Now()},
		stopPurge:       make(chan struct{}),
	}
	s.traceMiddleware = trace.NewMiddleware(opts.Logger, s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.categoriesCache)
	s.cacheManager.Register(s.usersCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	if s.purge != nil {
		go s.purgeLoop(opts.PurgeInterval)
	}

	s.Handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(s.securityDetector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.sessionMiddleware)

		limited := r.With(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited))

		r.With(s.guard("/login")).Get("/login", s.handleLoginPage)
		limited.With(s.guard("/login")).Post("/login", s.handleLogin)
		r.With(s.guard("/register")).Get("/register", s.handleRegisterPage)
		limited.With(s.guard("/register")).Post("/register", s.handleRegister)
		r.Post("/logout", s.handleLogout)

		r.With(s.guard("/")).Get("/", s.handleDashboard)

		r.Route("/expenses", func(r chi.Router) {
			r.Use(s.guard("/expenses"))
			r.Get("/", s.handleExpenses)
			r.Post("/", s.handleCreateExpense)
			r.Post("/{id}", s.handleUpdateExpense)
			r.Post("/{id}/delete", s.handleDeleteExpense)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Use(s.guard("/categories"))
			r.Get("/", s.handleCategories)
			r.Post("/", s.handleCreateCategory)
			r.Post("/{id}", s.handleUpdateCategory)
			r.Post("/{id}/delete", s.handleDeleteCategory)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.guard("/users"))
			r.Get("/", s.handleUsers)
			r.Post("/", s.handleCreateUser)
			r.Post("/{id}", s.handleUpdateUser)
			r.Post("/{id}/delete", s.handleDeleteUser)
		})

		r.With(s.guard("/reports")).Get("/reports", s.handleReports)

		r.Route("/settings", func(r chi.Router) {
			r.Use(s.guard("/settings"))
			r.Get("/", s.handleSettings)
			r.Post("/profile", s.handleUpdateProfile)
			r.Post("/password", s.handleChangePassword)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("Page not found").Write(w)
	})
	return r
}

// purgeLoop drops idle sessions until Shutdown.
func (s *Server) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.purge(ctx, s.sessionTTL)
			cancel()
			if err != nil {
				s.logger.Error("Session purge failed", log.FieldError, err)
			} else if n > 0 {
				s.logger.Info("Purged idle sessions", log.FieldCount, n)
			}
		case <-s.stopPurge:
			return
		}
	}
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.stopPurge)
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
