package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"expensio/internal/core"
	"expensio/internal/guard"
	"expensio/internal/log"
	"expensio/internal/session"
	appweb "expensio/web"
)

var pages = []string{"login", "register", "dashboard", "expenses", "categories", "users", "reports", "settings"}

// parseTemplates builds one template set per page so each page can define
// its own "content" block.
func parseTemplates() (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(appweb.TemplatesFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", page, err)
		}
		out[page] = t
	}
	return out, nil
}

// pageData is what the layout renders around every page.
type pageData struct {
	Title   string
	Path    string
	Session session.Session
	Nav     []guard.Route
	Notice  string
	Error   string
	Errors  core.FieldErrors
	Data    any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	sess := currentSession(r)
	data.Session = sess
	data.Nav = guard.Navigation(sess)
	data.Path = r.URL.Path
	if data.Title == "" {
		if route, ok := guard.Lookup(r.URL.Path); ok {
			data.Title = route.Title
		}
	}
	if data.Notice == "" {
		data.Notice = notices[r.URL.Query().Get("notice")]
	}
	s.execute(w, r, status, page, "layout", data)
}

// renderFragment renders a named block of page for htmx swaps.
func (s *Server) renderFragment(w http.ResponseWriter, r *http.Request, page, name string, data any) {
	s.execute(w, r, http.StatusOK, page, name, data)
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, status int, page, name string, data any) {
	t, ok := s.templates[page]
	if !ok {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unknown page", log.FieldPage, page)
		InternalServerError("Page not available").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Template execution failed", err,
			log.ComponentTemplate, log.OpRender, nil)
		InternalServerError("Error rendering page").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(buf.String()).Write(w)
}
