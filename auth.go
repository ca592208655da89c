package authorflow

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (a *App) handleLoginPage(c echo.Context) error {
	if _, ok := sessionOwner(c); ok {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	if a.Views.Login == nil {
		return c.JSON(http.StatusOK, map[string]string{"csrf": CsrfToken(c)})
	}
	return Render(c, a.Views.Login(false, CsrfToken(c)))
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setOwnerSession(c, a.Config.Owner); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/")
	}
	a.loginLimiter.Record(ip)
	a.Log.WithField("ip", ip).Warn("failed login")
	if a.Views.Login == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}
	return RenderStatus(c, http.StatusUnauthorized, a.Views.Login(true, CsrfToken(c)))
}

func handleLogout(c echo.Context) error {
	if err := clearOwnerSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/login/")
}
