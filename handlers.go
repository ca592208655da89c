package authorflow

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"

	"github.com/authorflow/authorflow/reconcile"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleCalendar(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), Owner(c))
	if err != nil {
		return err
	}
	if a.Views.Calendar == nil {
		return c.JSON(http.StatusOK, posts)
	}
	return Render(c, a.Views.Calendar(posts, CsrfToken(c)))
}

func (a *App) handleListPosts(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.Request().Context(), Owner(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleSavePost(c echo.Context) error {
	ctx := c.Request().Context()
	owner := Owner(c)

	var p Post
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid post payload")
	}
	p.Platform = strings.TrimSpace(p.Platform)
	if p.Platform == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "piattaforma is required")
	}
	if p.ScheduledAt.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "data is required")
	}

	status := http.StatusCreated
	if p.ID != "" {
		existing, err := a.Store.GetPost(ctx, p.ID)
		switch {
		case err == nil:
			if existing.Owner != owner {
				return echo.NewHTTPError(http.StatusNotFound)
			}
			p.Image = existing.Image
			status = http.StatusOK
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	p.Owner = owner
	p.Performance = nil

	saved, err := a.Store.SavePost(ctx, p)
	if err != nil {
		return err
	}
	a.Cache.Invalidate(owner)
	return c.JSON(status, saved)
}

func (a *App) handleDeletePost(c echo.Context) error {
	owner := Owner(c)
	if err := a.Store.DeletePost(c.Request().Context(), owner, c.Param("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return err
	}
	a.Cache.Invalidate(owner)
	return c.NoContent(http.StatusNoContent)
}

// handleDueSoon lists unpublished posts scheduled within ?within= (a Go
// duration, default Config.DueSoonWindow) from now.
func (a *App) handleDueSoon(c echo.Context) error {
	window := a.Config.DueSoonWindow
	if v := c.QueryParam("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "within must be a positive duration")
		}
		window = d
	}
	posts, err := a.Store.ListDueSoon(c.Request().Context(), Owner(c), a.now(), window)
	if err != nil {
		return err
	}
	if posts == nil {
		posts = []Post{}
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleImportPage(c echo.Context) error {
	if a.Views.ImportForm == nil {
		return c.JSON(http.StatusOK, map[string]any{
			"platforms": reconcile.Platforms(),
			"csrf":      CsrfToken(c),
		})
	}
	return Render(c, a.Views.ImportForm(nil, CsrfToken(c)))
}

// handleImport accepts one or more CSV exports in the multipart field
// "files" and a "strategy" of update_only or create_new.
func (a *App) handleImport(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected multipart form")
	}
	strategyName := a.Config.Import.DefaultStrategy
	if v := form.Value["strategy"]; len(v) > 0 && v[0] != "" {
		strategyName = v[0]
	}
	strategy, err := reconcile.ParseStrategy(strategyName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no files uploaded")
	}
	files := make([]ImportFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > a.Config.Import.MaxFileBytes {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("%s is too large", fh.Filename))
		}
		src, err := fh.Open()
		if err != nil {
			return err
		}
		rows, err := ReadRows(src)
		src.Close()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
		}
		files = append(files, ImportFile{Name: fh.Filename, Rows: rows})
	}

	report, err := a.Importer.Run(c.Request().Context(), Owner(c), strategy, files)
	if err != nil {
		return err
	}
	if isHTMX(c) && a.Views.ImportForm != nil {
		return Render(c, a.Views.ImportForm(&report, CsrfToken(c)))
	}
	return c.JSON(http.StatusOK, report)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= 500 {
		a.Log.WithError(err).WithField("uri", c.Request().RequestURI).Error("server error")
	}

	wantsHTML := !strings.HasPrefix(c.Request().URL.Path, "/api/") &&
		strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
	switch {
	case wantsHTML && code == http.StatusNotFound && a.Views.NotFound != nil:
		_ = RenderStatus(c, code, a.Views.NotFound())
	case wantsHTML && code >= 500 && a.Views.ServerError != nil:
		_ = RenderStatus(c, code, a.Views.ServerError())
	case code >= 500:
		_ = c.JSON(code, map[string]string{"error": http.StatusText(code)})
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
