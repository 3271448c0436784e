package web

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed templates
var templateFS embed.FS

// Handler serves the built-in browser UI. All data access happens from the
// browser against /api/v1 with the session cookie; these routes only render
// the page shells.
type Handler struct {
	templates *template.Template
}

func NewHandler() *Handler {
	tmpl := template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
	return &Handler{templates: tmpl}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/web/")
	})
	e.GET("/web", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/web/")
	})
	e.GET("/web/", h.dashboardPage)
	e.GET("/web/login", h.loginPage)
	e.GET("/web/admin", h.adminPage)
}

type pageData struct {
	Title string
}

func (h *Handler) render(c echo.Context, page string, data pageData) error {
	c.Response().Header().Set("Content-Type", "text/html; charset=utf-8")
	return h.templates.ExecuteTemplate(c.Response(), page, data)
}

func (h *Handler) loginPage(c echo.Context) error {
	return h.render(c, "login.html", pageData{Title: "Login"})
}

func (h *Handler) dashboardPage(c echo.Context) error {
	return h.render(c, "app.html", pageData{Title: "Dashboard"})
}

func (h *Handler) adminPage(c echo.Context) error {
	return h.render(c, "admin.html", pageData{Title: "Admin"})
}
