// Package authorflow is the server side of a social-media content calendar
// for authors. It stores scheduled posts, serves the calendar API, and imports
// platform analytics exports into the posts they belong to.
//
// Users provide their own templ templates via the ViewFuncs struct. Any view
// left nil is answered with JSON instead, which is what the single-page app
// consumes.
package authorflow

import (
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/authorflow/authorflow/reconcile"
)

// ViewFuncs holds user-provided templ components rendered for browser pages.
type ViewFuncs struct {
	Login       func(showError bool, csrfToken string) templ.Component
	Calendar    func(posts []Post, csrfToken string) templ.Component
	ImportForm  func(report *ImportReport, csrfToken string) templ.Component
	NotFound    func() templ.Component
	ServerError func() templ.Component
}

// App is the central AuthorFlow application. It wires together the store,
// cache, importer, handlers, middleware, and user-provided templates.
type App struct {
	Config   Config
	Echo     *echo.Echo
	Store    *Store
	Cache    *PostCache
	Importer *Importer
	Metrics  *Metrics
	Views    ViewFuncs
	Log      *logrus.Logger

	loginLimiter *LoginLimiter
	customRoutes []func(*App)
	now          func() time.Time
}

// New creates a new App with the given configuration and view functions.
func New(cfg Config, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		Views:  views,
		now:    time.Now,
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}
	if a.Log == nil {
		a.Log = NewLogger(cfg.LogLevel)
	}

	return a
}

// Start initializes the app and serves HTTP until the server stops.
func (a *App) Start() error {
	if err := a.setup(); err != nil {
		return err
	}
	a.Log.WithField("addr", a.Config.Addr).Info("authorflow listening")
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) setup() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("authorflow: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("authorflow: SessionSecret is required")
	}

	if a.Store == nil {
		store, err := NewStore(a.Config.Database)
		if err != nil {
			return fmt.Errorf("authorflow: init store: %w", err)
		}
		a.Store = store
	}

	loc, err := a.Config.Import.Location()
	if err != nil {
		return fmt.Errorf("authorflow: %w", err)
	}

	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)
	a.Metrics = NewMetrics()
	a.Importer = NewImporter(a.Store, a.Cache, a.Metrics, a.Log, reconcile.DateParser{
		ReferenceYear: a.Config.Import.AnalysisYear,
		Now:           a.now,
		Location:      loc,
	})
	a.loginLimiter = NewLoginLimiter(5, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/public", a.Config.StaticDir)
	e.GET("/metrics", echo.WrapHandler(a.Metrics.Handler()))
	e.GET("/healthz", a.handleHealth)

	e.GET("/login/", a.handleLoginPage)
	e.POST("/login/", a.handleLogin)
	e.POST("/logout/", handleLogout)

	e.GET("/", a.handleCalendar, a.requireOwner)
	e.GET("/import/", a.handleImportPage, a.requireOwner)

	api := e.Group("/api", a.requireOwner)
	api.GET("/posts/", a.handleListPosts)
	api.POST("/posts/", a.handleSavePost)
	api.GET("/posts/due/", a.handleDueSoon)
	api.DELETE("/posts/:id/", a.handleDeletePost)
	api.POST("/posts/:id/image/", a.handlePostImage)
	api.POST("/import/", a.handleImport)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
